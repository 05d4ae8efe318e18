package keygen

import (
	"context"
	"fmt"

	"wg-confkeeper/models"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// InProcess generates curve25519 keys without an external tool.
type InProcess struct{}

func (InProcess) PrivateKey(_ context.Context) (string, error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", fmt.Errorf("%w: generate private key: %v", models.ErrExternalTool, err)
	}
	return key.String(), nil
}

func (InProcess) PublicKey(_ context.Context, priv string) (string, error) {
	key, err := wgtypes.ParseKey(priv)
	if err != nil {
		return "", fmt.Errorf("%w: parse private key: %v", models.ErrExternalTool, err)
	}
	return key.PublicKey().String(), nil
}

func (InProcess) PresharedKey(_ context.Context) (string, error) {
	key, err := wgtypes.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("%w: generate preshared key: %v", models.ErrExternalTool, err)
	}
	return key.String(), nil
}
