// Package processor owns the server config document: it parses it into a peer
// registry and performs the add, update and delete rewrites.
package processor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"wg-confkeeper/models"

	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"
	"github.com/sirupsen/logrus"
)

const defaultPerm fs.FileMode = 0o600

// Document is an open server config. The file is the source of truth, the
// registry is rebuilt from it after every rewrite.
type Document struct {
	path  string
	kind  models.Kind
	perm  fs.FileMode
	fLock *flock.Flock
	now   func() time.Time

	lay *layout
	// private keys generated during this run, keyed by public key
	secrets map[string]string
}

type Option func(*Document)

func WithClock(now func() time.Time) Option {
	return func(d *Document) {
		d.now = now
	}
}

func WithKind(kind models.Kind) Option {
	return func(d *Document) {
		d.kind = kind
	}
}

func newDocument(path string, opts ...Option) *Document {
	d := &Document{
		path:    path,
		kind:    models.DetectKind(path),
		perm:    defaultPerm,
		now:     time.Now,
		secrets: make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func lockPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, fmt.Sprintf(".%s.lock", base))
}

func tryLock(path string) (*flock.Flock, error) {
	fLock := flock.New(lockPath(path))
	if ok, err := fLock.TryLock(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	} else if !ok {
		return nil, fmt.Errorf("%w: %s is locked", models.ErrLocked, path)
	}
	return fLock, nil
}

// Open locks and parses the document at path. The lock is held until Close.
func Open(path string, opts ...Option) (*Document, error) {
	fLock, err := tryLock(path)
	if err != nil {
		return nil, err
	}

	d := newDocument(path, opts...)
	d.fLock = fLock
	if err := d.load(); err != nil {
		_ = fLock.Unlock()
		return nil, err
	}
	return d, nil
}

// Parse builds a document from text that is never written anywhere.
func Parse(text string, opts ...Option) (*Document, error) {
	d := newDocument("", opts...)
	lay, err := parseLayout(text)
	if err != nil {
		return nil, err
	}
	d.lay = lay
	return d, nil
}

func (d *Document) load() error {
	fstat, err := os.Stat(d.path)
	if err != nil {
		return fmt.Errorf("main config file %s: %w", d.path, err)
	}
	d.perm = fstat.Mode().Perm()

	buf, err := os.ReadFile(d.path)
	if err != nil {
		return err
	}
	lay, err := parseLayout(string(buf))
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	d.lay = lay

	var server *models.Address
	if addr, err := d.ServerAddress(); err == nil {
		server = &addr
	}
	if err := lay.registry.Validate(server); err != nil {
		logrus.WithField("config", d.path).Warn(err)
	}
	logrus.
		WithField("config", d.path).
		WithField("type", d.kind).
		WithField("peers", lay.registry.Len()).
		Debug("config loaded")
	return nil
}

func (d *Document) Close() error {
	if d.fLock == nil {
		return nil
	}
	return d.fLock.Unlock()
}

func (d *Document) Path() string {
	return d.path
}

func (d *Document) Kind() models.Kind {
	return d.kind
}

func (d *Document) Interface() models.ServerInterface {
	return d.lay.iface
}

// Meta holds the server level directives such as #_PublicKey.
func (d *Document) Meta() map[string]string {
	return d.lay.meta
}

func (d *Document) Registry() *models.Registry {
	return d.lay.registry
}

func (d *Document) Text() string {
	return d.lay.text()
}

func (d *Document) ServerAddress() (models.Address, error) {
	return d.lay.iface.Address()
}

// ServerPublicKey comes from the #_PublicKey directive, or a PublicKey field
// when the interface was written by hand.
func (d *Document) ServerPublicKey() string {
	if v, ok := d.lay.meta["PublicKey"]; ok {
		return v
	}
	v, _ := d.lay.iface.Get("PublicKey")
	return v
}

// commit validates the new text by parsing it, writes it atomically and
// swaps the in-memory state.
func (d *Document) commit(text string) error {
	lay, err := parseLayout(text)
	if err != nil {
		return fmt.Errorf("refusing to write invalid config: %w", err)
	}
	if d.path != "" {
		if err := atomicwriter.WriteFile(d.path, []byte(text), d.perm); err != nil {
			return fmt.Errorf("failed to write %s: %w", d.path, err)
		}
	}
	d.lay = lay
	for pub, priv := range d.secrets {
		if rec, ok := lay.registry.Get(pub); ok {
			rec.PrivateKey = priv
		}
	}
	return nil
}

// Create writes a brand new document, refusing to replace an existing one.
func Create(path string, text string) error {
	fLock, err := tryLock(path)
	if err != nil {
		return err
	}
	defer fLock.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", models.ErrExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if _, err := parseLayout(text); err != nil {
		return fmt.Errorf("refusing to write invalid config: %w", err)
	}
	return atomicwriter.WriteFile(path, []byte(text), defaultPerm)
}
