package qr

import (
	"context"

	"github.com/UnAfraid/wg-gateway/pkg/command"
)

type execRenderer struct {
	runner       command.Runner
	qrencodePath string
}

func NewExecRenderer(runner command.Runner, qrencodePath string) Renderer {
	return &execRenderer{
		runner:       runner,
		qrencodePath: qrencodePath,
	}
}

func (r *execRenderer) RenderPNG(ctx context.Context, text string) ([]byte, error) {
	cmd := command.Command{
		Name:  r.qrencodePath,
		Args:  []string{"-t", "png", "-o", "-"},
		Stdin: []byte(text),
	}

	result, err := r.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		return nil, command.NewToolError(cmd, result)
	}
	if len(result.Stdout) == 0 {
		return nil, ErrEmptyImage
	}
	return result.Stdout, nil
}
