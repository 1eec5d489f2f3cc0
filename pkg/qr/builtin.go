package qr

import (
	"context"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const builtinImageSize = 512

type builtinRenderer struct{}

func NewBuiltinRenderer() Renderer {
	return &builtinRenderer{}
}

func (r *builtinRenderer) RenderPNG(_ context.Context, text string) ([]byte, error) {
	png, err := qrcode.Encode(text, qrcode.Medium, builtinImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}
