package git

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// WorkspacesDir is the directory under the base path that holds clones.
const WorkspacesDir = ".workspaces"

// Default timeouts for git subprocesses.
const (
	DefaultGitTimeout   = 60 * time.Second
	DefaultCloneTimeout = 300 * time.Second
	DefaultPushTimeout  = 120 * time.Second
)

// Workspace is a local checkout the agent works in.
type Workspace struct {
	Path        string `json:"path"`
	Branch      string `json:"branch"`
	BaseBranch  string `json:"baseBranch,omitempty"`
	RemoteURL   string `json:"remoteUrl,omitempty"`
	Cloned      bool   `json:"cloned"`
	CanCreatePR bool   `json:"canCreatePR"`
}

// AuthFunc returns an HTTP header ("Authorization: ...") to send for
// the given remote, or "" for none.
type AuthFunc func(remoteURL string) string

// Manager creates and operates on workspaces.
type Manager struct {
	basePath     string
	cloneTimeout time.Duration
	gitTimeout   time.Duration
	pushTimeout  time.Duration
	runner       CommandRunner
	auth         AuthFunc
	now          func() time.Time
	verbose      bool
	logger       *slog.Logger
}

// ManagerOption is a functional option for configuring Manager.
type ManagerOption func(*Manager)

// WithRunner replaces the git subprocess runner.
func WithRunner(r CommandRunner) ManagerOption {
	return func(m *Manager) {
		m.runner = r
	}
}

// WithAuth sets the per-remote credential header used for clone and push.
func WithAuth(fn AuthFunc) ManagerOption {
	return func(m *Manager) {
		m.auth = fn
	}
}

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides time.Now for workspace directory names.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager rooted at cfg.BasePath.
func NewManager(cfg config.WorkspaceConfig, verbose bool, opts ...ManagerOption) *Manager {
	m := &Manager{
		basePath:     cfg.BasePath,
		cloneTimeout: cfg.CloneTimeout,
		gitTimeout:   cfg.GitTimeout,
		pushTimeout:  DefaultPushTimeout,
		auth:         func(string) string { return "" },
		now:          time.Now,
		verbose:      verbose,
		logger:       slog.Default(),
	}
	if m.cloneTimeout <= 0 {
		m.cloneTimeout = DefaultCloneTimeout
	}
	if m.gitTimeout <= 0 {
		m.gitTimeout = DefaultGitTimeout
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = &ExecRunner{Verbose: verbose, Logger: m.logger}
	}

	return m
}

// Root returns the directory clones are created in.
func (m *Manager) Root() string {
	return filepath.Join(m.basePath, WorkspacesDir)
}

func (m *Manager) logDebug(msg string, args ...any) {
	if m.verbose {
		m.logger.Debug(msg, args...)
	}
}

// run executes git in dir bounded by timeout.
func (m *Manager) run(ctx context.Context, timeout time.Duration, dir string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.runner.Run(ctx, dir, args...)
}

func (m *Manager) output(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()
	out, err := m.runner.Output(ctx, dir, args...)
	return strings.TrimSpace(string(out)), err
}

// withAuth prefixes args with -c http.extraHeader when the remote needs it.
func (m *Manager) withAuth(remote string, args ...string) []string {
	header := m.auth(remote)
	if header == "" {
		return args
	}
	return append([]string{"-c", "http.extraHeader=" + header}, args...)
}

// UseLocal opens an existing checkout at path and reports its current
// branch, origin URL and default branch.
func (m *Manager) UseLocal(path string) (*Workspace, error) {
	if strings.TrimSpace(path) == "" {
		return nil, shiperrors.NewValidationError("path", "a folder path is required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve path")
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, shiperrors.NewValidationError("path", "folder does not exist: "+abs)
	}

	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, shiperrors.NewValidationError("path", "not a git repository: "+abs)
	}

	ws := &Workspace{Path: abs}

	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		ws.Branch = head.Name().Short()
	}

	if remote, err := repo.Remote("origin"); err == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			ws.RemoteURL = urls[0]
		}
	}

	ws.BaseBranch = originHead(repo)
	if ws.BaseBranch == "" {
		ws.BaseBranch = ws.Branch
	}

	m.logDebug("using local workspace", "path", abs, "branch", ws.Branch, "remote", ws.RemoteURL)
	return ws, nil
}

// originHead resolves refs/remotes/origin/HEAD to a short branch name.
func originHead(repo *gogit.Repository) string {
	ref, err := repo.Reference(plumbing.NewRemoteHEADReferenceName("origin"), false)
	if err != nil || ref.Type() != plumbing.SymbolicReference {
		return ""
	}
	return strings.TrimPrefix(ref.Target().Short(), "origin/")
}

// CurrentBranch returns the checked-out branch of the workspace.
func (m *Manager) CurrentBranch(path string) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.Wrap(err, "failed to open repository")
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "failed to read HEAD")
	}
	if !head.Name().IsBranch() {
		return "", shiperrors.NewGitError("rev-parse", "HEAD is not on a branch")
	}
	return head.Name().Short(), nil
}

// CreateBranch creates and checks out branch from the current HEAD. An
// existing branch of the same name is checked out instead.
func (m *Manager) CreateBranch(ctx context.Context, path, branch string) error {
	if err := m.run(ctx, m.gitTimeout, path, "show-ref", "--verify", "--quiet", "refs/heads/"+branch); err == nil {
		return m.Checkout(ctx, path, branch)
	}
	return m.run(ctx, m.gitTimeout, path, "checkout", "-b", branch)
}

// Checkout switches the workspace to branch.
func (m *Manager) Checkout(ctx context.Context, path, branch string) error {
	return m.run(ctx, m.gitTimeout, path, "checkout", branch)
}

// Diff returns the unified diff of the working tree against HEAD,
// including untracked files (registered with intent-to-add).
func (m *Manager) Diff(ctx context.Context, path string) (string, error) {
	if err := m.run(ctx, m.gitTimeout, path, "add", "-N", "."); err != nil {
		return "", err
	}
	return m.output(ctx, path, "diff", "HEAD")
}

// DiffAgainst returns the changes on HEAD since it diverged from base,
// which is what a pull request from the current branch into base shows.
// The remote-tracking ref is preferred over a local branch of that name.
func (m *Manager) DiffAgainst(ctx context.Context, path, base string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", shiperrors.NewValidationError("targetBranch", "a target branch is required")
	}
	out, err := m.output(ctx, path, "diff", "origin/"+base+"...HEAD")
	if err == nil {
		return out, nil
	}
	m.logDebug("no remote-tracking ref for base, using local branch", "base", base, "error", err)
	return m.output(ctx, path, "diff", base+"...HEAD")
}

// HasChanges reports whether the working tree differs from HEAD.
func (m *Manager) HasChanges(ctx context.Context, path string) (bool, error) {
	out, err := m.output(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CommitAll stages every change and commits it, returning the new HEAD sha.
func (m *Manager) CommitAll(ctx context.Context, path, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", shiperrors.NewValidationError("message", "commit message is required")
	}

	changed, err := m.HasChanges(ctx, path)
	if err != nil {
		return "", err
	}
	if !changed {
		return "", shiperrors.NewWorkflowError("commit", "no changes to commit")
	}

	if err := m.run(ctx, m.gitTimeout, path, "add", "-A"); err != nil {
		return "", err
	}
	if err := m.run(ctx, m.gitTimeout, path, "commit", "-m", message); err != nil {
		return "", err
	}
	return m.output(ctx, path, "rev-parse", "HEAD")
}

// Push pushes branch to origin and sets it as upstream.
func (m *Manager) Push(ctx context.Context, path, branch string) error {
	remote, err := m.output(ctx, path, "remote", "get-url", "origin")
	if err != nil {
		return err
	}
	args := m.withAuth(remote, "push", "-u", "origin", branch)
	return m.run(ctx, m.pushTimeout, path, args...)
}

// Remove deletes a cloned workspace. Local folders (not under Root) are
// never removed. Failures are logged and swallowed.
func (m *Manager) Remove(ws *Workspace) {
	if ws == nil || !ws.Cloned || !m.owns(ws.Path) {
		return
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		m.logger.Warn("failed to remove workspace", "path", ws.Path, "error", err)
	}
}

// owns reports whether path lies inside Root.
func (m *Manager) owns(path string) bool {
	rel, err := filepath.Rel(m.Root(), path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
