// Package executor runs the external engine and composition CLIs the pipeline
// drives. deckhand never reimplements those tools; it only invokes them and
// interprets their exit codes.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external command invocation.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
	Stdin   string
}

// Result holds the captured output and exit code of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. Pipeline steps depend on this interface
// so tests can substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Local runs commands on the local host via os/exec.
type Local struct{}

// NewLocal creates a Local runner.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Run(ctx context.Context, cmd Command) (*Result, error) {
	execCmd := exec.CommandContext(ctx, cmd.Program, cmd.Args...)

	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		execCmd.Env = os.Environ()
		for k, v := range cmd.Env {
			execCmd.Env = append(execCmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}

	if err != nil {
		return result, fmt.Errorf("%s failed: %w", cmd.Program, err)
	}
	return result, nil
}

// String renders the command for dry-run output and logging. Stdin content is
// never included, it may carry credentials.
func (c Command) String() string {
	parts := append([]string{c.Program}, c.Args...)
	return strings.Join(parts, " ")
}
