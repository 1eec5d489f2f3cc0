package keygen

import (
	"context"
	"errors"
	"fmt"

	"github.com/UnAfraid/wg-gateway/pkg/command"
)

const (
	KindExec    = "exec"
	KindBuiltin = "builtin"
)

var ErrUnknownKind = errors.New("unknown key generator kind")

type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

type Generator interface {
	Generate(ctx context.Context) (*KeyPair, error)
}

func New(kind string, runner command.Runner, wgPath string) (Generator, error) {
	switch kind {
	case KindExec:
		return NewExecGenerator(runner, wgPath), nil
	case KindBuiltin:
		return NewBuiltinGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}
