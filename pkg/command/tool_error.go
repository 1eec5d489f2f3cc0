package command

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrToolFailure = errors.New("external tool failed")

// ToolError reports a tool that ran and exited non-zero. Stderr is kept for
// logging and is not part of Error().
type ToolError struct {
	Tool       string
	Subcommand string
	ExitCode   int
	Stderr     string
}

func NewToolError(c Command, result *Result) *ToolError {
	toolError := &ToolError{
		Tool:     filepath.Base(c.Name),
		ExitCode: result.ExitCode,
		Stderr:   strings.TrimSpace(string(result.Stderr)),
	}
	if len(c.Args) > 0 {
		toolError.Subcommand = c.Args[0]
	}
	return toolError
}

func (e *ToolError) Error() string {
	if e.Subcommand == "" {
		return fmt.Sprintf("%s failed (exit=%d)", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s %s failed (exit=%d)", e.Tool, e.Subcommand, e.ExitCode)
}

func (e *ToolError) Unwrap() error {
	return ErrToolFailure
}
