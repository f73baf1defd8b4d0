// Package localexec runs approved commands and patches directly on the host.
//
// It is the reference executor used by the CLI. Isolation is delegated to an
// optional wrapper command (for example bwrap or sandbox-exec) that is
// prepended when the gate asks for a sandboxed run.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/gate"
)

const (
	// DefaultTimeout bounds commands that do not set their own timeout.
	DefaultTimeout = 2 * time.Minute
	// DefaultMaxOutput caps the output returned to the model, in bytes.
	DefaultMaxOutput = 64 * 1024
)

// ErrEmptyCommand is returned for a run with no argv.
var ErrEmptyCommand = errors.New("localexec: empty command")

// Executor implements gate.Executor with os/exec.
type Executor struct {
	timeout   time.Duration
	maxOutput int
	wrapper   []string
	logger    *slog.Logger

	unsandboxed sync.Once
}

var _ gate.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the default command timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxOutput caps the returned output at n bytes.
func WithMaxOutput(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithSandboxWrapper sets the argv prepended to sandboxed runs.
func WithSandboxWrapper(argv ...string) Option {
	return func(e *Executor) {
		e.wrapper = argv
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
		logger:    ai.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exec runs in.Command and returns its combined output. A non-zero exit is
// reported through the metadata, not as an error. Timeouts and start
// failures are errors.
func (e *Executor) Exec(ctx context.Context, in gate.ExecInput) (gate.ExecResult, error) {
	if len(in.Command) == 0 {
		return gate.ExecResult{}, ErrEmptyCommand
	}
	argv := in.Command
	if in.Sandbox {
		if len(e.wrapper) > 0 {
			argv = append(append([]string{}, e.wrapper...), argv...)
		} else {
			e.unsandboxed.Do(func() {
				e.logger.Warn("sandboxed run requested but no sandbox wrapper is configured; commands run on the host",
					"cmd", in.Command)
			})
		}
	}

	timeout := e.timeout
	if in.TimeoutMillis > 0 {
		timeout = time.Duration(in.TimeoutMillis) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = in.Workdir
	cmd.WaitDelay = time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	output := truncate(out.String(), e.maxOutput)

	if ctx.Err() != nil {
		return gate.ExecResult{}, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return gate.ExecResult{}, fmt.Errorf("timed out after %s: %s", timeout, output)
	}

	meta := gate.ExecMetadata{DurationSeconds: elapsed.Seconds()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		meta.ExitCode = gate.IntPtr(0)
	case errors.As(err, &exitErr):
		meta.ExitCode = gate.IntPtr(exitErr.ExitCode())
	default:
		return gate.ExecResult{}, err
	}

	e.logger.Debug("command finished", "cmd", in.Command, "exit_code", *meta.ExitCode, "duration", elapsed)
	return gate.ExecResult{Output: output, Metadata: meta}, nil
}

// truncate keeps the head and tail of s within limit bytes. Cut points
// back off to rune boundaries so the result stays valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	half := limit / 2
	head := half
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	tail := len(s) - half
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	omitted := tail - head
	return fmt.Sprintf("%s\n[... %d bytes omitted ...]\n%s", s[:head], omitted, s[tail:])
}
