// Package picker opens the operating system's native folder chooser.
package picker

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// DefaultTimeout bounds how long the dialog may stay open.
const DefaultTimeout = 120 * time.Second

// ErrCancelled is returned when the user closes the dialog without
// choosing a folder.
var ErrCancelled = errors.New("folder selection cancelled")

const windowsScript = `Add-Type -AssemblyName System.Windows.Forms
$d = New-Object System.Windows.Forms.FolderBrowserDialog
$d.Description = 'Select a repository folder'
if ($d.ShowDialog() -eq [System.Windows.Forms.DialogResult]::OK) { Write-Output $d.SelectedPath }`

// RunFunc runs a command and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Picker shows the folder dialog.
type Picker struct {
	goos    string
	timeout time.Duration
	run     RunFunc
}

// Option configures a Picker.
type Option func(*Picker)

// WithGOOS overrides the detected operating system.
func WithGOOS(goos string) Option {
	return func(p *Picker) {
		p.goos = goos
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Picker) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRunner replaces command execution.
func WithRunner(run RunFunc) Option {
	return func(p *Picker) {
		p.run = run
	}
}

// New creates a Picker for the current platform.
func New(opts ...Option) *Picker {
	p := &Picker{
		goos:    runtime.GOOS,
		timeout: DefaultTimeout,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Command returns the dialog command for goos.
func Command(goos string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", `POSIX path of (choose folder with prompt "Select a repository folder")`}, nil
	case "linux":
		return "zenity", []string{"--file-selection", "--directory", "--title=Select a repository folder"}, nil
	case "windows":
		return "powershell", []string{"-NoProfile", "-STA", "-Command", windowsScript}, nil
	default:
		return "", nil, shiperrors.NewWorkflowError("pick-folder", "unsupported platform: "+goos)
	}
}

// PickFolder shows the dialog and returns the chosen absolute path.
func (p *Picker) PickFolder(ctx context.Context) (string, error) {
	name, args, err := Command(p.goos)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, name, args...)
	path := strings.TrimSpace(string(out))

	if ctx.Err() == context.DeadlineExceeded {
		return "", shiperrors.NewWorkflowError("pick-folder", "no folder was selected within "+p.timeout.String())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && path == "" {
			// zenity exits 1 and osascript exits 1 (error -128) on cancel.
			return "", ErrCancelled
		}
		return "", errors.Wrapf(err, "failed to run %s", name)
	}
	if path == "" {
		return "", ErrCancelled
	}

	if p.goos == "darwin" && len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path, nil
}
