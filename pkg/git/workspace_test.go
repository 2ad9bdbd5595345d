package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// fakeRunner records git invocations and answers them from handlers.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	run    func(dir string, args []string) error
	output func(dir string, args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, dir string, args ...string) error {
	f.record(args)
	if f.run != nil {
		return f.run(dir, args)
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, dir string, args ...string) ([]byte, error) {
	f.record(args)
	if f.output != nil {
		return f.output(dir, args)
	}
	return nil, nil
}

func (f *fakeRunner) record(args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args...))
}

func (f *fakeRunner) called(sub string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if operation(c) == sub {
			out = append(out, c)
		}
	}
	return out
}

func newTestManager(t *testing.T, r CommandRunner, opts ...ManagerOption) *Manager {
	t.Helper()
	fixed := time.Unix(1700000000, 0)
	opts = append([]ManagerOption{WithRunner(r), WithClock(func() time.Time { return fixed })}, opts...)
	return NewManager(config.WorkspaceConfig{BasePath: t.TempDir()}, false, opts...)
}

func TestManager_Clone(t *testing.T) {
	r := &fakeRunner{
		run: func(_ string, args []string) error {
			if args[0] == "clone" {
				return os.MkdirAll(args[len(args)-1], 0o755)
			}
			return nil
		},
		output: func(_ string, args []string) ([]byte, error) {
			switch args[0] {
			case "rev-parse":
				return []byte("feature/x\n"), nil
			case "symbolic-ref":
				return []byte("refs/remotes/origin/main\n"), nil
			}
			return nil, nil
		},
	}
	m := newTestManager(t, r)

	ws, err := m.Clone(context.Background(), "https://dev.azure.com/org/proj/_git/api", "feature/x")
	require.NoError(t, err)

	require.Equal(t, filepath.Join(m.Root(), "api-1700000000"), ws.Path)
	require.True(t, ws.Cloned)
	require.Equal(t, "feature/x", ws.Branch)
	require.Equal(t, "main", ws.BaseBranch)
	require.DirExists(t, ws.Path)

	clones := r.called("clone")
	require.Len(t, clones, 1)
	require.Equal(t, []string{"clone", "--branch", "feature/x", "https://dev.azure.com/org/proj/_git/api", ws.Path}, clones[0])
}

func TestManager_Clone_AuthHeader(t *testing.T) {
	r := &fakeRunner{
		run: func(_ string, args []string) error {
			if operation(args) == "clone" {
				return os.MkdirAll(args[len(args)-1], 0o755)
			}
			return nil
		},
	}
	m := newTestManager(t, r, WithAuth(func(remote string) string {
		if strings.Contains(remote, "dev.azure.com") {
			return "Authorization: Basic abc"
		}
		return ""
	}))

	_, err := m.Clone(context.Background(), "https://dev.azure.com/org/proj/_git/api", "")
	require.NoError(t, err)

	clones := r.called("clone")
	require.Len(t, clones, 1)
	require.Equal(t, []string{"-c", "http.extraHeader=Authorization: Basic abc"}, clones[0][:2])
}

func TestManager_Clone_FailureRemovesDirectory(t *testing.T) {
	var target string
	r := &fakeRunner{
		run: func(_ string, args []string) error {
			if args[0] == "clone" {
				target = args[len(args)-1]
				require.NoError(t, os.MkdirAll(filepath.Join(target, "partial"), 0o755))
				return &shiperrors.GitError{Operation: "clone", Stderr: "fatal: repository not found"}
			}
			return nil
		},
	}
	m := newTestManager(t, r)

	_, err := m.Clone(context.Background(), "https://github.com/owner/missing.git", "")
	require.Error(t, err)
	require.True(t, shiperrors.IsGitError(err))
	require.Contains(t, err.Error(), "repository not found")
	require.NoDirExists(t, target)
}

func TestManager_Clone_SameSecondGetsOwnDirectory(t *testing.T) {
	clones := 0
	r := &fakeRunner{
		run: func(_ string, args []string) error {
			if args[0] != "clone" {
				return nil
			}
			clones++
			target := args[len(args)-1]
			if clones == 3 {
				require.NoError(t, os.WriteFile(filepath.Join(target, "partial"), nil, 0o644))
				return &shiperrors.GitError{Operation: "clone", Stderr: "fatal: could not read from remote"}
			}
			return os.WriteFile(filepath.Join(target, "edited.go"), []byte("package x\n"), 0o644)
		},
		output: func(_ string, args []string) ([]byte, error) {
			if args[0] == "rev-parse" {
				return []byte("main\n"), nil
			}
			return nil, nil
		},
	}
	m := newTestManager(t, r)
	const remote = "https://dev.azure.com/org/proj/_git/api"

	first, err := m.Clone(context.Background(), remote, "")
	require.NoError(t, err)
	second, err := m.Clone(context.Background(), remote, "")
	require.NoError(t, err)

	require.Equal(t, filepath.Join(m.Root(), "api-1700000000"), first.Path)
	require.Equal(t, filepath.Join(m.Root(), "api-1700000000-2"), second.Path)

	_, err = m.Clone(context.Background(), remote, "")
	require.Error(t, err)
	require.NoDirExists(t, filepath.Join(m.Root(), "api-1700000000-3"))
	require.FileExists(t, filepath.Join(first.Path, "edited.go"))
	require.FileExists(t, filepath.Join(second.Path, "edited.go"))
}

func TestManager_CloneTo_ExistingDirectoryUntouched(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})

	dir := filepath.Join(m.Root(), ".shared-instructions")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.md"), nil, 0o644))

	err := m.CloneTo(context.Background(), "https://github.com/acme/guides.git", dir)
	require.True(t, shiperrors.IsWorkflowError(err), "got %v", err)
	require.FileExists(t, filepath.Join(dir, "keep.md"))
}

func TestManager_Clone_EmptyURL(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	_, err := m.Clone(context.Background(), "  ", "")
	require.True(t, shiperrors.IsValidationError(err))
}

func TestManager_DetectDefaultBranch_Fallbacks(t *testing.T) {
	r := &fakeRunner{
		run: func(_ string, args []string) error {
			if args[0] == "show-ref" && strings.HasSuffix(args[len(args)-1], "/master") {
				return nil
			}
			return errors.New("missing")
		},
		output: func(_ string, args []string) ([]byte, error) {
			return nil, errors.New("no origin/HEAD")
		},
	}
	m := newTestManager(t, r)

	got, err := m.detectDefaultBranch(context.Background(), "/repo")
	require.NoError(t, err)
	require.Equal(t, "master", got)
}

func TestManager_FirstRemoteBranch(t *testing.T) {
	r := &fakeRunner{
		output: func(_ string, args []string) ([]byte, error) {
			if args[0] == "branch" {
				return []byte("  origin/HEAD -> origin/develop\n  origin/develop\n"), nil
			}
			return nil, nil
		},
	}
	m := newTestManager(t, r)

	got, err := m.firstRemoteBranch(context.Background(), "/repo")
	require.NoError(t, err)
	require.Equal(t, "develop", got)
}

func TestManager_CommitAll(t *testing.T) {
	r := &fakeRunner{
		output: func(_ string, args []string) ([]byte, error) {
			switch args[0] {
			case "status":
				return []byte(" M main.go\n"), nil
			case "rev-parse":
				return []byte("abc123\n"), nil
			}
			return nil, nil
		},
	}
	m := newTestManager(t, r)

	sha, err := m.CommitAll(context.Background(), "/repo", "feat: add thing")
	require.NoError(t, err)
	require.Equal(t, "abc123", sha)
	require.Len(t, r.called("add"), 1)
	require.Equal(t, []string{"commit", "-m", "feat: add thing"}, r.called("commit")[0])
}

func TestManager_CommitAll_NoChanges(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})

	_, err := m.CommitAll(context.Background(), "/repo", "msg")
	require.True(t, shiperrors.IsWorkflowError(err))
}

func TestManager_CommitAll_EmptyMessage(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})

	_, err := m.CommitAll(context.Background(), "/repo", " ")
	require.True(t, shiperrors.IsValidationError(err))
}

func TestManager_Diff(t *testing.T) {
	r := &fakeRunner{
		output: func(_ string, args []string) ([]byte, error) {
			if args[0] == "diff" {
				return []byte("diff --git a/x b/x\n"), nil
			}
			return nil, nil
		},
	}
	m := newTestManager(t, r)

	out, err := m.Diff(context.Background(), "/repo")
	require.NoError(t, err)
	require.Equal(t, "diff --git a/x b/x", out)
	require.Equal(t, []string{"add", "-N", "."}, r.called("add")[0])
}

func TestManager_DiffAgainst_FallsBackToLocalBranch(t *testing.T) {
	r := &fakeRunner{
		output: func(_ string, args []string) ([]byte, error) {
			if args[1] == "origin/main...HEAD" {
				return nil, shiperrors.NewGitError("diff", "unknown revision")
			}
			return []byte("diff --git a/y b/y\n"), nil
		},
	}
	m := newTestManager(t, r)

	out, err := m.DiffAgainst(context.Background(), "/repo", "main")
	require.NoError(t, err)
	require.Equal(t, "diff --git a/y b/y", out)

	calls := r.called("diff")
	require.Len(t, calls, 2)
	require.Equal(t, []string{"diff", "main...HEAD"}, calls[1])

	_, err = m.DiffAgainst(context.Background(), "/repo", " ")
	require.True(t, shiperrors.IsValidationError(err))
}

func TestManager_Push(t *testing.T) {
	r := &fakeRunner{
		output: func(_ string, args []string) ([]byte, error) {
			if args[0] == "remote" {
				return []byte("https://github.com/owner/repo.git\n"), nil
			}
			return nil, nil
		},
	}
	m := newTestManager(t, r)

	require.NoError(t, m.Push(context.Background(), "/repo", "feature/1-x"))
	require.Equal(t, []string{"push", "-u", "origin", "feature/1-x"}, r.called("push")[0])
}

func TestManager_CreateBranch(t *testing.T) {
	r := &fakeRunner{
		run: func(_ string, args []string) error {
			if args[0] == "show-ref" {
				return errors.New("not found")
			}
			return nil
		},
	}
	m := newTestManager(t, r)

	require.NoError(t, m.CreateBranch(context.Background(), "/repo", "feature/1"))
	require.Equal(t, []string{"checkout", "-b", "feature/1"}, r.called("checkout")[0])
}

func TestManager_Remove(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})

	inside := filepath.Join(m.Root(), "repo-1")
	require.NoError(t, os.MkdirAll(inside, 0o755))
	m.Remove(&Workspace{Path: inside, Cloned: true})
	require.NoDirExists(t, inside)

	outside := t.TempDir()
	m.Remove(&Workspace{Path: outside, Cloned: true})
	require.DirExists(t, outside)

	local := filepath.Join(m.Root(), "repo-2")
	require.NoError(t, os.MkdirAll(local, 0o755))
	m.Remove(&Workspace{Path: local, Cloned: false})
	require.DirExists(t, local)

	m.Remove(nil)
}

func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	require.NoError(t, repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))))
	head, err := repo.Reference(plumbing.NewBranchReferenceName("master"), true)
	if err == nil {
		require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), head.Hash())))
	}

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://dev.azure.com/org/proj/_git/api"},
	})
	require.NoError(t, err)

	return dir
}

func TestManager_UseLocal(t *testing.T) {
	dir := initRepo(t)
	m := newTestManager(t, &fakeRunner{})

	ws, err := m.UseLocal(dir)
	require.NoError(t, err)
	require.Equal(t, dir, ws.Path)
	require.Equal(t, "main", ws.Branch)
	require.Equal(t, "main", ws.BaseBranch)
	require.Equal(t, "https://dev.azure.com/org/proj/_git/api", ws.RemoteURL)
	require.False(t, ws.Cloned)

	branch, err := m.CurrentBranch(dir)
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestManager_UseLocal_Invalid(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"missing", filepath.Join(t.TempDir(), "nope")},
		{"not a repo", t.TempDir()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.UseLocal(tt.path)
			require.True(t, shiperrors.IsValidationError(err), "got %v", err)
		})
	}
}

func TestOperationAndRedact(t *testing.T) {
	args := []string{"-c", "http.extraHeader=Authorization: Basic secret", "push", "-u", "origin", "main"}
	require.Equal(t, "push", operation(args))

	red := redactArgs(args)
	require.NotContains(t, strings.Join(red, " "), "secret")
	require.Equal(t, "push", red[2])
}

func TestManager_CloneToAndPull(t *testing.T) {
	r := &fakeRunner{
		run: func(_ string, args []string) error {
			if operation(args) == "clone" {
				return os.MkdirAll(args[len(args)-1], 0o755)
			}
			return nil
		},
		output: func(_ string, args []string) ([]byte, error) {
			if args[0] == "remote" {
				return []byte("https://github.com/acme/guides.git\n"), nil
			}
			return nil, nil
		},
	}
	m := newTestManager(t, r, WithAuth(func(string) string { return "Authorization: Basic abc" }))

	dir := filepath.Join(m.Root(), ".shared-instructions")
	require.NoError(t, m.CloneTo(context.Background(), "https://github.com/acme/guides.git", dir))
	require.DirExists(t, dir)

	clones := r.called("clone")
	require.Len(t, clones, 1)
	require.Equal(t, []string{"-c", "http.extraHeader=Authorization: Basic abc", "clone", "https://github.com/acme/guides.git", dir}, clones[0])

	require.NoError(t, m.Pull(context.Background(), dir))
	pulls := r.called("pull")
	require.Len(t, pulls, 1)
	require.Equal(t, []string{"-c", "http.extraHeader=Authorization: Basic abc", "pull", "--ff-only"}, pulls[0])

	require.True(t, shiperrors.IsValidationError(m.CloneTo(context.Background(), " ", dir)))
}
