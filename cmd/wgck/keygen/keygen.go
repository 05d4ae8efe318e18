// Package keygen produces key material for new peers, either by shelling out to
// the awg/wg tool or in process.
package keygen

import (
	"context"
	"fmt"
	"os/exec"

	"wg-confkeeper/models"
)

const Builtin = "builtin"

var knownTools = [...]string{"awg", "wg"}

type Generator interface {
	PrivateKey(ctx context.Context) (string, error)
	PublicKey(ctx context.Context, priv string) (string, error)
	PresharedKey(ctx context.Context) (string, error)
}

type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

func NewKeyPair(ctx context.Context, g Generator) (KeyPair, error) {
	priv, err := g.PrivateKey(ctx)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := g.PublicKey(ctx, priv)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// Detect lists the key tools found on PATH, awg first.
func Detect() []string {
	var found []string
	for _, tool := range knownTools {
		if path, err := exec.LookPath(tool); err == nil {
			found = append(found, path)
		}
	}
	return found
}

// Select picks a generator. name may be a tool name or path, Builtin, or empty
// to take the detected tool matching kind, falling back to any detected tool.
func Select(name string, kind models.Kind) (Generator, error) {
	switch name {
	case Builtin:
		return InProcess{}, nil
	case "":
	default:
		path, err := exec.LookPath(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s not found: %v", models.ErrExternalTool, name, err)
		}
		return NewTool(path), nil
	}

	found := Detect()
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: wg or awg not found", models.ErrExternalTool)
	}
	for _, path := range found {
		if models.KindForTool(path) == kind {
			return NewTool(path), nil
		}
	}
	return NewTool(found[0]), nil
}
