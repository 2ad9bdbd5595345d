package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// Clone clones remoteURL into <base>/.workspaces/<repo>-<unix timestamp>
// and checks out branch when one is given. When that directory is taken a
// numeric suffix is added. A failed clone removes only the directory it
// created; errors removing it are only logged.
func (m *Manager) Clone(ctx context.Context, remoteURL, branch string) (*Workspace, error) {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return nil, shiperrors.NewValidationError("repoUrl", "a repository URL is required")
	}

	if err := os.MkdirAll(m.Root(), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %s", m.Root())
	}

	dir, err := m.reserveDir(fmt.Sprintf("%s-%d", RepoNameFromURL(remoteURL), m.now().Unix()))
	if err != nil {
		return nil, err
	}

	if err := m.cloneInto(ctx, remoteURL, dir, branch); err != nil {
		m.cleanup(dir)
		return nil, err
	}

	ws := &Workspace{
		Path:      dir,
		RemoteURL: remoteURL,
		Cloned:    true,
	}

	current, err := m.output(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		m.cleanup(dir)
		return nil, err
	}
	ws.Branch = current

	base, err := m.detectDefaultBranch(ctx, dir)
	if err != nil {
		m.logger.Warn("could not detect default branch", "path", dir, "error", err)
		base = current
	}
	ws.BaseBranch = base

	return ws, nil
}

// CloneTo clones remoteURL into dir, which must not exist yet. It is used
// for checkouts with a fixed location such as the shared instructions repo.
func (m *Manager) CloneTo(ctx context.Context, remoteURL, dir string) error {
	if strings.TrimSpace(remoteURL) == "" {
		return shiperrors.NewValidationError("repoUrl", "a repository URL is required")
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", filepath.Dir(dir))
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return shiperrors.NewWorkflowError("clone", dir+" already exists")
		}
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	if err := m.cloneInto(ctx, remoteURL, dir, ""); err != nil {
		m.cleanup(dir)
		return err
	}
	return nil
}

// reserveDir creates an empty directory under Root named name, or name-2,
// name-3 and so on when it is taken. os.Mkdir fails on an existing path, so
// concurrent callers never share a directory.
func (m *Manager) reserveDir(name string) (string, error) {
	for i := 1; i <= maxDirAttempts; i++ {
		dir := filepath.Join(m.Root(), name)
		if i > 1 {
			dir = fmt.Sprintf("%s-%d", dir, i)
		}
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}
	return "", shiperrors.NewWorkflowError("clone", "no free workspace directory for "+name)
}

const maxDirAttempts = 100

func (m *Manager) cloneInto(ctx context.Context, remoteURL, dir, branch string) error {
	m.logDebug("cloning repository", "remote", remoteURL, "path", dir, "branch", branch)

	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, remoteURL, dir)

	return m.run(ctx, m.cloneTimeout, "", m.withAuth(remoteURL, args...)...)
}

// Pull fast-forwards the checked-out branch of path from origin.
func (m *Manager) Pull(ctx context.Context, path string) error {
	remote, err := m.output(ctx, path, "remote", "get-url", "origin")
	if err != nil {
		return err
	}
	return m.run(ctx, m.cloneTimeout, path, m.withAuth(remote, "pull", "--ff-only")...)
}

func (m *Manager) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("failed to clean up partial clone", "path", dir, "error", err)
	}
}

// detectDefaultBranch determines the default branch of a fresh clone.
// Priority: origin/HEAD > main > master > first remote branch.
func (m *Manager) detectDefaultBranch(ctx context.Context, repoPath string) (string, error) {
	ref, err := m.output(ctx, repoPath, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil && strings.HasPrefix(ref, "refs/remotes/origin/") {
		return strings.TrimPrefix(ref, "refs/remotes/origin/"), nil
	}

	for _, branch := range []string{"main", "master"} {
		if m.remoteBranchExists(ctx, repoPath, branch) {
			return branch, nil
		}
	}

	return m.firstRemoteBranch(ctx, repoPath)
}

func (m *Manager) remoteBranchExists(ctx context.Context, repoPath, branch string) bool {
	return m.run(ctx, m.gitTimeout, repoPath, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+branch) == nil
}

func (m *Manager) firstRemoteBranch(ctx context.Context, repoPath string) (string, error) {
	out, err := m.output(ctx, repoPath, "branch", "-r")
	if err != nil {
		return "", errors.Wrap(err, "failed to list remote branches")
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "HEAD ->") {
			continue
		}
		if strings.HasPrefix(line, "origin/") {
			return strings.TrimPrefix(line, "origin/"), nil
		}
	}

	return "", errors.New("no remote branches found")
}
