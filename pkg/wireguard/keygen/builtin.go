package keygen

import (
	"context"
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

type builtinGenerator struct{}

func NewBuiltinGenerator() Generator {
	return &builtinGenerator{}
}

func (g *builtinGenerator) Generate(_ context.Context) (*KeyPair, error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return &KeyPair{
		PrivateKey: key.String(),
		PublicKey:  key.PublicKey().String(),
	}, nil
}
