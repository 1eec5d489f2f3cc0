package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/metrics"
)

const defaultWaitDelay = 2 * time.Second

type Command struct {
	Name  string
	Args  []string
	Stdin []byte
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return filepath.Base(c.Name)
	}
	return filepath.Base(c.Name) + " " + strings.Join(c.Args, " ")
}

// Result of a process that was started and exited. A non-zero ExitCode is not an error.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

func (r *Result) Success() bool {
	return r.ExitCode == 0
}

type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

type Option func(r *execRunner)

func WithSudo(sudoPath string) Option {
	return func(r *execRunner) {
		r.useSudo = true
		r.sudoPath = sudoPath
	}
}

func WithWaitDelay(waitDelay time.Duration) Option {
	return func(r *execRunner) {
		r.waitDelay = waitDelay
	}
}

type execRunner struct {
	useSudo   bool
	sudoPath  string
	waitDelay time.Duration
}

func NewRunner(options ...Option) Runner {
	r := &execRunner{
		waitDelay: defaultWaitDelay,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *execRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("command %s not started: %w", c, err)
	}

	name := c.Name
	args := c.Args
	if r.useSudo {
		name = r.sudoPath
		args = append([]string{"-n", c.Name}, c.Args...)
	}

	var stdout, stderr bytes.Buffer
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.waitDelay
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	tool := filepath.Base(c.Name)

	if err == nil {
		r.observe(c, tool, "ok", 0, duration)
		return &Result{
			ExitCode: 0,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.observe(c, tool, "canceled", -1, duration)
		return nil, fmt.Errorf("command %s canceled: %w", c, ctxErr)
	}

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		exitCode := exitErr.ExitCode()
		if r.useSudo && isSudoPasswordPrompt(stderr.String()) {
			r.observe(c, tool, "failed", exitCode, duration)
			return nil, fmt.Errorf("%w for command %s", ErrSudoPasswordRequired, c)
		}
		if r.useSudo && isSudoCommandNotFound(stderr.String()) {
			r.observe(c, tool, "not_found", exitCode, duration)
			return nil, fmt.Errorf("%w: %s (via %s)", ErrExecutableNotFound, c.Name, name)
		}

		r.observe(c, tool, "exit_error", exitCode, duration)
		return &Result{
			ExitCode: exitCode,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}, nil
	}

	if errors.Is(err, osexec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		r.observe(c, tool, "not_found", -1, duration)
		return nil, fmt.Errorf("%w: %s: %v", ErrExecutableNotFound, name, err)
	}

	r.observe(c, tool, "failed", -1, duration)
	return nil, fmt.Errorf("failed to run command %s: %w", c, err)
}

func (r *execRunner) observe(c Command, tool string, outcome string, exitCode int, duration time.Duration) {
	metrics.CommandDuration.WithLabelValues(tool, outcome).Observe(duration.Seconds())
	logrus.
		WithField("command", c.String()).
		WithField("outcome", outcome).
		WithField("exitCode", exitCode).
		WithField("duration", duration).
		Debug("command finished")
}

func isSudoPasswordPrompt(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "a password is required") || strings.Contains(lower, "no tty present")
}

// isSudoCommandNotFound matches sudo's own "sudo: <name>: command not found".
func isSudoCommandNotFound(stderr string) bool {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "sudo:") && strings.HasSuffix(line, "command not found") {
			return true
		}
	}
	return false
}
