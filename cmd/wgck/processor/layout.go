package processor

import (
	"fmt"
	"strings"

	"wg-confkeeper/models"
)

type lineKind int

const (
	kindBlank lineKind = iota
	kindSection
	kindField
	kindDirective
	kindComment
	kindOther
)

const (
	sectionInterface = "Interface"
	sectionPeer      = "Peer"

	dirPeer       = "Peer"
	dirName       = "Name"
	dirAllowedIPs = "AllowedIPs"
	dirGenKeyTime = "GenKeyTime"
)

// line is one raw document line with its classification. key holds the section
// name for section headers.
type line struct {
	text  string
	kind  lineKind
	key   string
	value string
}

func classify(text string) line {
	l := line{text: text}
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		l.kind = kindBlank
	case strings.HasPrefix(trimmed, "["):
		end := strings.Index(trimmed, "]")
		if end < 0 {
			l.kind = kindOther
			return l
		}
		l.kind = kindSection
		l.key = strings.TrimSpace(trimmed[1:end])
	case strings.HasPrefix(trimmed, models.DirectivePrefix):
		k, v, ok := strings.Cut(strings.TrimPrefix(trimmed, models.DirectivePrefix), "=")
		if !ok {
			l.kind = kindComment
			return l
		}
		l.kind = kindDirective
		l.key = strings.TrimSpace(k)
		l.value = strings.TrimSpace(v)
	case strings.HasPrefix(trimmed, "#"):
		l.kind = kindComment
	default:
		k, v, ok := strings.Cut(trimmed, "=")
		if !ok {
			l.kind = kindOther
			return l
		}
		l.kind = kindField
		l.key = strings.TrimSpace(k)
		l.value = strings.TrimSpace(v)
	}
	return l
}

// peerBlock is one addressable peer: an optional [Peer] stanza and the
// directive comments that describe it. Lines [start, end) belong to it; lead
// marks a blank line right above start that goes with it on delete.
type peerBlock struct {
	start, end int
	lead       bool
	stanza     bool
	fields     map[string]int
	directives map[string]int
}

func newBlock(start int, stanza bool) *peerBlock {
	return &peerBlock{
		start:      start,
		end:        start + 1,
		stanza:     stanza,
		fields:     make(map[string]int),
		directives: make(map[string]int),
	}
}

// timed reports whether a #_GenKeyTime line can no longer belong to b. A
// directive-only block starts at its #_Peer, so any time after that belongs
// to the next peer.
func (b *peerBlock) timed() bool {
	_, hasPeer := b.directives[dirPeer]
	_, hasTime := b.directives[dirGenKeyTime]
	return hasTime || (!b.stanza && hasPeer)
}

func (b *peerBlock) field(key string) (int, bool) {
	idx, ok := b.fields[strings.ToLower(key)]
	return idx, ok
}

// layout is the parsed form of a document. It is rebuilt from text after every
// mutation and never edited in place.
type layout struct {
	lines    []line
	trailing bool

	iface    models.ServerInterface
	meta     map[string]string
	blocks   []*peerBlock
	byKey    map[string]*peerBlock
	registry *models.Registry
}

func splitLines(text string) ([]line, bool) {
	if text == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(text, "\n")
	raw := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	lines := make([]line, 0, len(raw))
	for _, r := range raw {
		lines = append(lines, classify(strings.TrimSuffix(r, "\r")))
	}
	return lines, trailing
}

func parseLayout(text string) (*layout, error) {
	lines, trailing := splitLines(text)
	lay := &layout{
		lines:    lines,
		trailing: trailing,
		iface:    models.ServerInterface{},
		meta:     make(map[string]string),
		byKey:    make(map[string]*peerBlock),
		registry: models.NewRegistry(),
	}
	if err := lay.scan(); err != nil {
		return nil, err
	}
	if err := lay.materialize(); err != nil {
		return nil, err
	}
	return lay, nil
}

func malformed(lineNo int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", models.ErrMalformedDocument, lineNo, fmt.Sprintf(format, args...))
}

// scan is the block state machine over the classified lines. A [Peer] stanza
// is accepted only when it carries a #_Peer directive; unmanaged stanzas are
// rejected by materialize.
func (lay *layout) scan() error {
	var (
		section       string
		seenInterface bool
		cur           *peerBlock
		loose         []int
		runStart      = -1
	)
	closeBlock := func() {
		if cur != nil {
			lay.blocks = append(lay.blocks, cur)
			cur = nil
		}
	}

	for i, ln := range lay.lines {
		looseTime := false

		switch ln.kind {
		case kindSection:
			closeBlock()
			switch {
			case strings.EqualFold(ln.key, sectionInterface):
				if seenInterface {
					return malformed(i+1, "second [Interface] section")
				}
				seenInterface = true
				section = sectionInterface
			case strings.EqualFold(ln.key, sectionPeer):
				section = sectionPeer
				cur = newBlock(i, true)
			default:
				section = ln.key
			}

		case kindField:
			if cur != nil && cur.stanza {
				cur.fields[strings.ToLower(ln.key)] = i
				cur.end = i + 1
				continue
			}
			closeBlock()
			if section == sectionInterface {
				lay.iface[ln.key] = ln.value
			}

		case kindDirective:
			switch ln.key {
			case dirPeer:
				if cur != nil && cur.stanza {
					if _, ok := cur.directives[dirPeer]; !ok {
						cur.directives[dirPeer] = i
						cur.end = i + 1
						continue
					}
				}
				closeBlock()
				start := i
				if runStart >= 0 {
					start = runStart
				}
				cur = newBlock(start, false)
				cur.end = i + 1
				cur.directives[dirPeer] = i
				if start < i {
					cur.directives[dirGenKeyTime] = i - 1
				}
			case dirName, dirAllowedIPs:
				if cur == nil {
					return malformed(i+1, "#_%s without a preceding #_Peer", ln.key)
				}
				if _, ok := cur.directives[dirPeer]; !ok {
					return malformed(i+1, "#_%s before #_Peer", ln.key)
				}
				cur.directives[ln.key] = i
				cur.end = i + 1
			default:
				if ln.key == dirGenKeyTime && cur != nil && cur.timed() {
					closeBlock()
				}
				if cur != nil {
					cur.directives[ln.key] = i
					cur.end = i + 1
					continue
				}
				loose = append(loose, i)
				if ln.key == dirGenKeyTime {
					looseTime = true
					if runStart < 0 {
						runStart = i
					}
				}
			}

		default:
			// blank lines and comments may sit inside a stanza, they end a
			// directive-only block
			if cur != nil && !cur.stanza {
				closeBlock()
			}
		}

		if !looseTime {
			runStart = -1
		}
	}
	closeBlock()

	prevEnd := 0
	for _, b := range lay.blocks {
		if b.start > prevEnd && lay.lines[b.start-1].kind == kindBlank {
			b.lead = true
		}
		prevEnd = b.end
	}

	for _, idx := range loose {
		if lay.inBlock(idx) {
			continue
		}
		// the [Interface] directives come first and win
		if _, ok := lay.meta[lay.lines[idx].key]; !ok {
			lay.meta[lay.lines[idx].key] = lay.lines[idx].value
		}
	}
	return nil
}

func (lay *layout) inBlock(idx int) bool {
	for _, b := range lay.blocks {
		if idx >= b.start && idx < b.end {
			return true
		}
	}
	return false
}

// materialize turns every block into a registry record
func (lay *layout) materialize() error {
	for _, b := range lay.blocks {
		peerIdx, ok := b.directives[dirPeer]
		if !ok {
			return malformed(b.start+1, "[Peer] section without #_Peer directive, config must not contain unmanaged peers")
		}
		rec := &models.PeerRecord{PublicKey: lay.lines[peerIdx].value}

		if idx, ok := b.field("PublicKey"); ok && lay.lines[idx].value != rec.PublicKey {
			return malformed(idx+1, "PublicKey does not match #_Peer %s", rec.PublicKey)
		}
		if idx, ok := b.field("PresharedKey"); ok {
			rec.PresharedKey = lay.lines[idx].value
		}
		if idx, ok := b.directives[dirName]; ok {
			rec.Name = lay.lines[idx].value
		}
		if idx, ok := b.directives[dirGenKeyTime]; ok {
			rec.GenKeyTime = lay.lines[idx].value
		}

		ipsIdx, ok := b.directives[dirAllowedIPs]
		if !ok {
			ipsIdx, ok = b.field("AllowedIPs")
		}
		if ok {
			addr, err := models.ParseAddress(models.FirstListValue(lay.lines[ipsIdx].value))
			if err != nil {
				return fmt.Errorf("line %d: %w", ipsIdx+1, err)
			}
			rec.AllowedIPs = &addr
		}

		if err := lay.registry.Insert(rec); err != nil {
			return fmt.Errorf("line %d: %w", peerIdx+1, err)
		}
		lay.byKey[rec.PublicKey] = b
	}
	return nil
}

func (lay *layout) texts() []string {
	out := make([]string, len(lay.lines))
	for i, ln := range lay.lines {
		out[i] = ln.text
	}
	return out
}

func (lay *layout) text() string {
	return joinLines(lay.texts(), lay.trailing)
}

func joinLines(texts []string, trailing bool) string {
	if len(texts) == 0 {
		return ""
	}
	out := strings.Join(texts, "\n")
	if trailing {
		out += "\n"
	}
	return out
}
