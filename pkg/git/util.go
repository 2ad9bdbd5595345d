package git

import (
	"os"
	"path/filepath"
	"strings"
)

// IsGitRepo checks if a path is a git checkout (.git directory, or .git
// file for worktrees and submodules).
func IsGitRepo(path string) bool {
	gitPath := filepath.Join(path, ".git")
	if info, err := os.Stat(gitPath); err == nil {
		return info.IsDir() || info.Mode().IsRegular()
	}
	return false
}

// RepoNameFromURL returns the last path segment of a remote URL without a
// .git suffix. It handles HTTPS, ssh:// and scp-style remotes.
func RepoNameFromURL(remote string) string {
	remote = strings.TrimSpace(remote)
	remote = strings.TrimRight(remote, "/")
	remote = strings.TrimSuffix(remote, ".git")

	if i := strings.LastIndexAny(remote, "/:"); i >= 0 {
		remote = remote[i+1:]
	}
	if remote == "" {
		return "repo"
	}
	return remote
}
