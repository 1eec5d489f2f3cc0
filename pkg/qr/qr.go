package qr

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

var (
	ErrUnknownKind = errors.New("unknown qr renderer kind")
	ErrEmptyImage  = errors.New("qr renderer produced an empty image")
)

// Renderer encodes text into a PNG QR code.
type Renderer interface {
	RenderPNG(ctx context.Context, text string) ([]byte, error)
}

func New(kind string, runner command.Runner, qrencodePath string) (Renderer, error) {
	switch kind {
	case KindExec:
		return NewExecRenderer(runner, qrencodePath), nil
	case KindBuiltin:
		return NewBuiltinRenderer(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}
