package keygen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"wg-confkeeper/models"

	"github.com/sirupsen/logrus"
)

// Tool runs "<tool> genkey|pubkey|genpsk".
type Tool struct {
	Path string
}

func NewTool(path string) *Tool {
	return &Tool{Path: path}
}

func (t *Tool) Name() string {
	return filepath.Base(t.Path)
}

func (t *Tool) PrivateKey(ctx context.Context) (string, error) {
	return t.run(ctx, "", "genkey")
}

func (t *Tool) PublicKey(ctx context.Context, priv string) (string, error) {
	return t.run(ctx, priv+"\n", "pubkey")
}

func (t *Tool) PresharedKey(ctx context.Context) (string, error) {
	return t.run(ctx, "", "genpsk")
}

// run fails on non-zero exit and on empty output
func (t *Tool) run(ctx context.Context, stdin string, arg string) (string, error) {
	cmd := exec.CommandContext(ctx, t.Path, arg)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logrus.WithField("tool", t.Name()).Debugf("running %s", arg)
	out, err := cmd.Output()
	if err != nil {
		trimmed := strings.TrimSpace(stderr.String())
		if trimmed == "" {
			return "", fmt.Errorf("%w: %s %s: %v", models.ErrExternalTool, t.Name(), arg, err)
		}
		return "", fmt.Errorf("%w: %s %s: %v: %s", models.ErrExternalTool, t.Name(), arg, err, trimmed)
	}
	key := strings.TrimSpace(string(out))
	if key == "" {
		return "", fmt.Errorf("%w: %s %s returned nothing", models.ErrExternalTool, t.Name(), arg)
	}
	return key, nil
}
