// Package git manages local workspaces: cloning, opening local checkouts,
// branching, diffing, committing and pushing through the git CLI.
package git

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// CommandRunner executes git subcommands. dir is the working directory;
// an empty dir runs in the process working directory.
type CommandRunner interface {
	Run(ctx context.Context, dir string, args ...string) error
	Output(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecRunner runs the real git binary.
type ExecRunner struct {
	Verbose bool
	Logger  *slog.Logger
}

// Run executes git and discards stdout.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) error {
	_, err := r.Output(ctx, dir, args...)
	return err
}

// Output executes git and returns stdout. Failures are reported as
// GitError carrying the trimmed stderr.
func (r *ExecRunner) Output(ctx context.Context, dir string, args ...string) ([]byte, error) {
	if r.Verbose && r.Logger != nil {
		r.Logger.Debug("git", "dir", dir, "args", redactArgs(args))
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		gitErr := &shiperrors.GitError{
			Operation: operation(args),
			Args:      redactArgs(args),
			Stderr:    strings.TrimSpace(stderr.String()),
			Cause:     err,
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			gitErr.Message = "timed out or cancelled"
			gitErr.Cause = errors.CombineErrors(ctxErr, err)
		}
		return stdout.Bytes(), gitErr
	}

	return stdout.Bytes(), nil
}

// operation picks the subcommand name out of args, skipping "-c k=v" pairs.
func operation(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		if !strings.HasPrefix(args[i], "-") {
			return args[i]
		}
	}
	return "git"
}

// redactArgs hides credentials passed through -c http.extraHeader.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(strings.ToLower(a), "http.extraheader=") {
			out[i] = "http.extraHeader=<redacted>"
			continue
		}
		out[i] = a
	}
	return out
}
