package keygen

import (
	"context"
	"fmt"
	"strings"

	"github.com/UnAfraid/wg-gateway/pkg/command"
)

type execGenerator struct {
	runner command.Runner
	wgPath string
}

// NewExecGenerator generates keys with `wg genkey` and derives the public key
// with `wg pubkey`.
func NewExecGenerator(runner command.Runner, wgPath string) Generator {
	return &execGenerator{
		runner: runner,
		wgPath: wgPath,
	}
}

func (g *execGenerator) Generate(ctx context.Context) (*KeyPair, error) {
	privateKey, err := g.run(ctx, command.Command{
		Name: g.wgPath,
		Args: []string{"genkey"},
	})
	if err != nil {
		return nil, err
	}

	publicKey, err := g.run(ctx, command.Command{
		Name:  g.wgPath,
		Args:  []string{"pubkey"},
		Stdin: []byte(privateKey + "\n"),
	})
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  publicKey,
	}, nil
}

func (g *execGenerator) run(ctx context.Context, cmd command.Command) (string, error) {
	result, err := g.runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", command.NewToolError(cmd, result)
	}

	key := strings.TrimSpace(string(result.Stdout))
	if key == "" {
		return "", fmt.Errorf("%w: %s returned empty output", command.ErrToolFailure, cmd)
	}
	return key, nil
}
