package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
)

// Kind is the protocol variant a document is written for.
type Kind int

const (
	KindUnknown Kind = iota
	KindWG
	KindAWG
)

const (
	ConfExt           = ".conf"
	PeerAddressPrefix = "32"
	clientNamePattern = `^[A-Za-z0-9_-]{1,63}$`
)

// ObfuscationKeys are the AWG-only interface fields.
var ObfuscationKeys = [...]string{"Jc", "Jmin", "Jmax", "S1", "S2", "H1", "H2", "H3", "H4"}

func (k Kind) String() string {
	switch k {
	case KindWG:
		return "WG"
	case KindAWG:
		return "AWG"
	default:
		return "unknown"
	}
}

// Tool is the key tool (and quick unit prefix) belonging to the kind.
func (k Kind) Tool() string {
	if k == KindAWG {
		return "awg"
	}
	return "wg"
}

func (k Kind) Obfuscated() bool {
	return k == KindAWG
}

// DetectKind derives the kind from the document file name, awg0.conf or wg0.conf.
func DetectKind(path string) Kind {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "awg"):
		return KindAWG
	case strings.HasPrefix(base, "wg"):
		return KindWG
	default:
		return KindUnknown
	}
}

func KindForTool(tool string) Kind {
	if filepath.Base(tool) == "awg" {
		return KindAWG
	}
	return KindWG
}

func ValidClientName(name string) bool {
	return govalidator.Matches(name, clientNamePattern)
}

// ServerInterface holds the raw fields of the [Interface] section.
type ServerInterface map[string]string

func (s ServerInterface) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

func (s ServerInterface) Address() (Address, error) {
	v, ok := s["Address"]
	if !ok {
		return Address{}, fmt.Errorf("%w: interface has no Address", ErrMalformedDocument)
	}
	return ParseAddress(FirstListValue(v))
}

// PeerRecord is one registered peer. PrivateKey is only known for peers
// generated during the current run.
type PeerRecord struct {
	PublicKey    string
	Name         string
	PresharedKey string
	PrivateKey   string
	AllowedIPs   *Address
	GenKeyTime   string
}

var genKeyTimeLayouts = [...]string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Created parses the generation timestamp, zero time if missing or unparsable.
func (p *PeerRecord) Created() time.Time {
	for _, layout := range genKeyTimeLayouts {
		if t, err := time.Parse(layout, p.GenKeyTime); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- block layout as written by the add operation ---

type PeerStanza struct {
	PublicKey    string   `conf:"PublicKey"`
	PresharedKey string   `conf:"PresharedKey"`
	AllowedIPs   []string `conf:"AllowedIPs" singleline:"true"`
}

type PeerDirectives struct {
	GenKeyTime string `conf:"GenKeyTime"`
	Peer       string `conf:"Peer"`
	Name       string `conf:"Name"`
	AllowedIPs string `conf:"AllowedIPs"`
}

type PeerBlock struct {
	Stanza PeerStanza `conf:"Peer"`
	PeerDirectives
}

// NewPeerBlock lays out a freshly generated peer.
func NewPeerBlock(p *PeerRecord) PeerBlock {
	var ips []string
	var dirIps string
	if p.AllowedIPs != nil {
		dirIps = p.AllowedIPs.String()
		ips = []string{dirIps}
	}
	return PeerBlock{
		Stanza: PeerStanza{
			PublicKey:    p.PublicKey,
			PresharedKey: p.PresharedKey,
			AllowedIPs:   ips,
		},
		PeerDirectives: PeerDirectives{
			GenKeyTime: p.GenKeyTime,
			Peer:       p.PublicKey,
			Name:       p.Name,
			AllowedIPs: dirIps,
		},
	}
}

// FirstListValue returns the first element of a comma separated value.
func FirstListValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
