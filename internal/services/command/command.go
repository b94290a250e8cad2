package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"reelforge/internal/services"
	"reelforge/internal/stage"
)

// ExitTempFail is the sysexits EX_TEMPFAIL code. Collaborators exit with it
// to report a transient upstream problem worth retrying.
const ExitTempFail = 75

const stderrTail = 2048

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdin io.Reader, stdout io.Writer) error
}

// Vars fills template placeholders.
type Vars struct {
	Input   string
	Output  string
	Job     string
	WorkDir string
}

// Expand substitutes {input}, {output}, {job} and {workdir} in every
// argument. Unknown placeholders are left as-is.
func Expand(template []string, vars Vars) []string {
	replacer := strings.NewReplacer(
		"{input}", vars.Input,
		"{output}", vars.Output,
		"{job}", vars.Job,
		"{workdir}", vars.WorkDir,
	)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = replacer.Replace(arg)
	}
	return out
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Runner executes one configured collaborator command.
type Runner struct {
	stage    stage.ID
	argv     []string
	fallback services.Kind
	exec     Executor
}

// NewRunner builds a runner for a stage. fallback is the failure kind used
// for non-zero exits other than ExitTempFail.
func NewRunner(stageID stage.ID, argv []string, fallback services.Kind, opts ...Option) *Runner {
	r := &Runner{
		stage:    stageID,
		argv:     append([]string(nil), argv...),
		fallback: fallback,
		exec:     processExecutor{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configured reports whether a command template exists.
func (r *Runner) Configured() bool { return r != nil && len(r.argv) > 0 }

// Program returns the configured binary name.
func (r *Runner) Program() string {
	if !r.Configured() {
		return ""
	}
	return r.argv[0]
}

// Run executes the command. A non-nil input is sent as JSON on stdin; a
// non-nil output receives the decoded JSON stdout.
func (r *Runner) Run(ctx context.Context, vars Vars, input, output any) error {
	if !r.Configured() {
		return services.WithHint(
			services.Wrap(services.KindValidation, r.stage, "run command", "no command configured", nil),
			"set the command template in the [commands] config section",
		)
	}
	args := Expand(r.argv, vars)

	var stdin io.Reader
	if input != nil {
		payload, err := json.Marshal(input)
		if err != nil {
			return services.Wrap(services.KindProcessing, r.stage, "encode command input", "", err)
		}
		stdin = bytes.NewReader(payload)
	}

	var stdout bytes.Buffer
	if err := r.exec.Run(ctx, args[0], args[1:], stdin, &stdout); err != nil {
		return r.classify(ctx, args[0], err)
	}
	if output == nil {
		return nil
	}
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), output); err != nil {
		return services.Wrap(services.KindProcessing, r.stage, "decode command output",
			fmt.Sprintf("%s wrote invalid JSON", args[0]), err)
	}
	return nil
}

func (r *Runner) classify(ctx context.Context, program string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.WithHint(
			services.Wrap(services.KindValidation, r.stage, "run command", program+" not found", err),
			"install the collaborator or fix its path in [commands]",
		)
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		if coded.ExitCode() == ExitTempFail {
			return services.Wrap(services.KindExternalService, r.stage, "run command",
				program+" reported a temporary failure", err)
		}
		return services.Wrap(r.fallback, r.stage, "run command",
			fmt.Sprintf("%s exited with status %d", program, coded.ExitCode()), err)
	}
	return services.Wrap(r.fallback, r.stage, "run command", program, err)
}

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, binary string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr tailBuffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return &runError{err: err, stderr: msg}
		}
		return err
	}
	return nil
}

type runError struct {
	err    error
	stderr string
}

func (e *runError) Error() string { return fmt.Sprintf("%v: %s", e.err, e.stderr) }
func (e *runError) Unwrap() error { return e.err }

// tailBuffer keeps the last stderrTail bytes written.
type tailBuffer struct {
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - stderrTail; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
