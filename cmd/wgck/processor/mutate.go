package processor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"wg-confkeeper/cmd/wgck/keygen"
	"wg-confkeeper/models"

	"github.com/sirupsen/logrus"
)

func (d *Document) genKeyTime() string {
	return d.now().Format(time.RFC3339)
}

func (d *Document) lookup(name string) (*models.PeerRecord, *peerBlock, error) {
	rec, err := d.lay.registry.FindByName(name)
	if err != nil {
		return nil, nil, err
	}
	b, ok := d.lay.byKey[rec.PublicKey]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q has no block", models.ErrPeerNotFound, name)
	}
	return rec, b, nil
}

// Add appends a new peer block with fresh keys and the next free address.
func (d *Document) Add(ctx context.Context, name string, keys keygen.Generator) (*models.PeerRecord, error) {
	name = strings.TrimSpace(name)
	if !models.ValidClientName(name) {
		return nil, fmt.Errorf("%w: %q, use only a-z A-Z 0-9 _ -", models.ErrInvalidClientName, name)
	}
	if _, err := d.lay.registry.FindByName(name); err == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrDuplicateName, name)
	}

	server, err := d.ServerAddress()
	if err != nil {
		return nil, err
	}
	addr, err := d.lay.registry.NextFreeAddress(server)
	if err != nil {
		return nil, err
	}
	logrus.WithField("peer", name).WithField("address", addr).Info("adding client")

	pair, err := keygen.NewKeyPair(ctx, keys)
	if err != nil {
		return nil, err
	}
	psk, err := keys.PresharedKey(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := d.lay.registry.Get(pair.PublicKey); ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDuplicateKey, pair.PublicKey)
	}

	rec := &models.PeerRecord{
		PublicKey:    pair.PublicKey,
		Name:         name,
		PresharedKey: psk,
		AllowedIPs:   &addr,
		GenKeyTime:   d.genKeyTime(),
	}
	buf, err := models.NewPeerBlock(rec).MarshalText()
	if err != nil {
		return nil, err
	}

	text := d.Text()
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	d.secrets[pair.PublicKey] = pair.PrivateKey
	if err := d.commit(text + string(buf)); err != nil {
		delete(d.secrets, pair.PublicKey)
		return nil, err
	}

	added, _ := d.lay.registry.Get(pair.PublicKey)
	logrus.WithField("peer", name).Info("client added to server config")
	return added, nil
}

// Update rekeys a peer. Only the #_Peer, #_GenKeyTime, PublicKey and
// PresharedKey lines of its own block change, wherever they sit in the block.
func (d *Document) Update(ctx context.Context, name string, keys keygen.Generator) (*models.PeerRecord, error) {
	rec, b, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	logrus.WithField("peer", name).Info("updating peer")

	pair, err := keygen.NewKeyPair(ctx, keys)
	if err != nil {
		return nil, err
	}
	var psk string
	if b.stanza {
		if psk, err = keys.PresharedKey(ctx); err != nil {
			return nil, err
		}
	} else {
		logrus.WithField("peer", name).Warn("peer has no [Peer] section, no preshared key written")
	}
	if _, ok := d.lay.registry.Get(pair.PublicKey); ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDuplicateKey, pair.PublicKey)
	}

	texts := d.lay.texts()
	rewrite := func(idx int, prefix string, value string) {
		texts[idx] = models.FormatField(prefix, d.lay.lines[idx].key, value)
	}

	rewrite(b.directives[dirPeer], models.DirectivePrefix, pair.PublicKey)
	if idx, ok := b.directives[dirGenKeyTime]; ok {
		rewrite(idx, models.DirectivePrefix, d.genKeyTime())
	}
	if b.stanza {
		pubIdx, hasPub := b.field("PublicKey")
		if hasPub {
			rewrite(pubIdx, "", pair.PublicKey)
		}
		if idx, ok := b.field("PresharedKey"); ok {
			rewrite(idx, "", psk)
		} else {
			at := b.start + 1
			if hasPub {
				at = pubIdx + 1
			}
			texts = slices.Insert(texts, at, models.FormatField("", "PresharedKey", psk))
		}
	}

	oldKey := rec.PublicKey
	d.secrets[pair.PublicKey] = pair.PrivateKey
	if err := d.commit(joinLines(texts, d.lay.trailing)); err != nil {
		delete(d.secrets, pair.PublicKey)
		return nil, err
	}
	delete(d.secrets, oldKey)

	updated, _ := d.lay.registry.Get(pair.PublicKey)
	logrus.WithField("peer", name).Info("peer updated")
	return updated, nil
}

// Delete drops the peer's whole block, together with the blank line that
// separates it from the previous content.
func (d *Document) Delete(name string) (*models.PeerRecord, error) {
	rec, b, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	logrus.WithField("peer", name).Info("deleting peer")

	start := b.start
	if b.lead {
		start--
	}
	texts := d.lay.texts()
	texts = slices.Delete(texts, start, b.end)

	if err := d.commit(joinLines(texts, d.lay.trailing)); err != nil {
		return nil, err
	}
	delete(d.secrets, rec.PublicKey)

	logrus.WithField("peer", name).Info("peer deleted")
	return rec, nil
}
