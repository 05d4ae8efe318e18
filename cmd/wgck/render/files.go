package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wg-confkeeper/models"

	"github.com/moby/sys/atomicwriter"
	"github.com/sirupsen/logrus"
)

const (
	pngExt        = ".png"
	clientConfMod = 0o600
)

// Source is the loaded server document.
type Source interface {
	Path() string
	Kind() models.Kind
	Interface() models.ServerInterface
	ServerPublicKey() string
	Registry() *models.Registry
}

func ClientConfPath(outDir, name string) string {
	return filepath.Join(outDir, name+models.ConfExt)
}

func QRPath(confPath string) string {
	return strings.TrimSuffix(confPath, models.ConfExt) + pngExt
}

// ReadTemplate loads a client template, it has to exist.
func ReadTemplate(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("template file %s: %w", path, err)
	}
	return string(buf), nil
}

// WriteNew writes content to a file that must not exist yet.
func WriteNew(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", models.ErrExists, path)
	}
	return atomicwriter.WriteFile(path, []byte(content), clientConfMod)
}

// Clients writes <name>.conf into outDir for every peer whose private key is
// known and returns the written paths. Client files of this server that belong
// to no registered peer are removed together with their QR code.
func Clients(src Source, tmpl string, outDir string) ([]string, error) {
	if err := removeStale(src, outDir); err != nil {
		return nil, err
	}

	tmpl = Prepare(tmpl, src.Kind())
	var written []string
	for _, peer := range src.Registry().Peers() {
		if peer.Name == "" || peer.PrivateKey == "" {
			logrus.WithField("pubkey", peer.PublicKey).Info("skip peer, private key unknown")
			continue
		}
		out := Render(tmpl, ClientValues(src.Kind(), src.Interface(), src.ServerPublicKey(), peer))
		if peer.PresharedKey == "" {
			out = DropEmptyField(out, "PresharedKey")
		}
		path := ClientConfPath(outDir, peer.Name)
		if err := atomicwriter.WriteFile(path, []byte(out), clientConfMod); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		logrus.WithField("peer", peer.Name).WithField("file", path).Info("client config written")
		written = append(written, path)
	}
	return written, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func removeStale(src Source, outDir string) error {
	serverPub := src.ServerPublicKey()
	if serverPub == "" {
		return nil
	}
	marker := models.FormatField("", "PublicKey", serverPub)

	matches, err := filepath.Glob(filepath.Join(outDir, "*"+models.ConfExt))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if samePath(path, src.Path()) {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), models.ConfExt)
		if _, err := src.Registry().FindByName(name); err == nil {
			continue
		}
		buf, err := os.ReadFile(path)
		if err != nil || !strings.Contains(string(buf), marker) {
			continue
		}
		logrus.WithField("file", path).Info("removing stale client config")
		if err := os.Remove(path); err != nil {
			return err
		}
		if err := os.Remove(QRPath(path)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
