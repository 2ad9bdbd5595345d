package instructions

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type fakeRepos struct {
	root   string
	clones []string
	pulls  []string
	err    error
}

func (f *fakeRepos) Root() string { return f.root }

func (f *fakeRepos) CloneTo(_ context.Context, remoteURL, dir string) error {
	f.clones = append(f.clones, remoteURL)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644)
}

func (f *fakeRepos) Pull(_ context.Context, path string) error {
	f.pulls = append(f.pulls, path)
	return f.err
}

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantFM   Frontmatter
		wantBody string
		wantErr  bool
	}{
		{
			name:     "full",
			in:       "---\napplyTo: \"**/*.go\"\ndescription: Go style\n---\n# Go\nUse gofmt.\n",
			wantFM:   Frontmatter{ApplyTo: "**/*.go", Description: "Go style"},
			wantBody: "# Go\nUse gofmt.",
		},
		{
			name:     "no frontmatter",
			in:       "Just text\n",
			wantBody: "Just text",
		},
		{
			name:     "empty frontmatter",
			in:       "---\n---\nBody",
			wantBody: "Body",
		},
		{
			name:     "crlf",
			in:       "---\r\nname: review\r\n---\r\nBody\r\n",
			wantFM:   Frontmatter{Name: "review"},
			wantBody: "Body",
		},
		{name: "unterminated", in: "---\napplyTo: x\nBody", wantErr: true},
		{name: "bad yaml", in: "---\napplyTo: [unclosed\n---\nBody", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body, err := ParseFrontmatter([]byte(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantFM, fm)
			require.Equal(t, tt.wantBody, body)
		})
	}
}

func TestValidateName(t *testing.T) {
	valid := map[string]string{
		"go":                     "go",
		"react-hooks":            "react-hooks",
		"style_guide.v2":         "style_guide.v2",
		"csharp.instructions.md": "csharp",
	}
	for in, want := range valid {
		got, err := ValidateName(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	for _, in := range []string{"", "../etc", "a/b", `a\b`, ".hidden", "a..b", strings.Repeat("x", 101)} {
		_, err := ValidateName(in)
		require.Error(t, err, in)
	}
}

func newLibrary(t *testing.T, shared string) (*Library, *fakeRepos, string) {
	t.Helper()
	workspace := t.TempDir()
	repos := &fakeRepos{root: t.TempDir()}
	lib := NewLibrary(config.InstructionsConfig{SharedRepo: shared}, repos, false, WithLogger(slog.New(slog.DiscardHandler)))
	return lib, repos, workspace
}

func TestLibrary_ListMergesShared(t *testing.T) {
	lib, repos, ws := newLibrary(t, "https://github.com/acme/guides.git")

	writeFile(t, filepath.Join(ws, ".github", "instructions", "go.instructions.md"), "---\napplyTo: \"**/*.go\"\n---\nLocal Go rules")
	writeFile(t, filepath.Join(ws, ".github", "instructions", "notes.md"), "ignored")
	writeFile(t, filepath.Join(ws, ".github", "instructions", "broken.instructions.md"), "---\nno end")

	shared := filepath.Join(repos.root, SharedDir)
	writeFile(t, filepath.Join(shared, ".github", "instructions", "go.instructions.md"), "Shared Go rules")
	writeFile(t, filepath.Join(shared, ".github", "instructions", "security.instructions.md"), "---\ndescription: Secure coding\n---\nNo secrets in logs")

	got, err := lib.List(ws)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "go", got[0].Name)
	require.Equal(t, SourceWorkspace, got[0].Source)
	require.Equal(t, "**/*.go", got[0].ApplyTo)
	require.Equal(t, "Local Go rules", got[0].Body)

	require.Equal(t, "security", got[1].Name)
	require.Equal(t, SourceShared, got[1].Source)
	require.Equal(t, "Secure coding", got[1].Description)

	inst, err := lib.Get(ws, "security")
	require.NoError(t, err)
	require.Equal(t, "No secrets in logs", inst.Body)

	_, err = lib.Get(ws, "missing")
	require.True(t, shiperrors.IsNotFoundError(err))

	_, err = lib.Get(ws, "../x")
	require.True(t, shiperrors.IsValidationError(err))
}

func TestLibrary_SaveAndDelete(t *testing.T) {
	lib, _, ws := newLibrary(t, "")

	inst, err := lib.Save(ws, "testing", "---\ndescription: Tests\n---\nWrite table tests.")
	require.NoError(t, err)
	require.Equal(t, "testing", inst.Name)
	require.Equal(t, "Tests", inst.Description)
	require.FileExists(t, filepath.Join(ws, ".github", "instructions", "testing.instructions.md"))

	_, err = lib.Save(ws, "bad/name", "x")
	require.True(t, shiperrors.IsValidationError(err))

	_, err = lib.Save(ws, "empty", "  ")
	require.True(t, shiperrors.IsValidationError(err))

	_, err = lib.Save(ws, "broken", "---\nunterminated")
	require.True(t, shiperrors.IsValidationError(err))

	_, err = lib.Save("", "testing", "x")
	require.True(t, shiperrors.IsWorkflowError(err))

	require.NoError(t, lib.Delete(ws, "testing"))
	require.NoFileExists(t, filepath.Join(ws, ".github", "instructions", "testing.instructions.md"))

	require.True(t, shiperrors.IsNotFoundError(lib.Delete(ws, "testing")))
}

func TestLibrary_Skills(t *testing.T) {
	lib, repos, ws := newLibrary(t, "https://github.com/acme/guides.git")

	writeFile(t, filepath.Join(ws, ".github", "skills", "migrations", "SKILL.md"), "---\nname: db-migrations\ndescription: Writing migrations\n---\nUse goose.")
	writeFile(t, filepath.Join(ws, ".github", "skills", "empty", "README.md"), "no skill file")
	writeFile(t, filepath.Join(repos.root, SharedDir, ".github", "skills", "release", "SKILL.md"), "Tag and push.")

	skills, err := lib.Skills(ws)
	require.NoError(t, err)
	require.Len(t, skills, 2)
	require.Equal(t, "db-migrations", skills[0].Name)
	require.Equal(t, "Writing migrations", skills[0].Description)
	require.Equal(t, "release", skills[1].Name)
	require.Equal(t, SourceShared, skills[1].Source)
}

func TestLibrary_SyncShared(t *testing.T) {
	lib, repos, _ := newLibrary(t, "https://github.com/acme/guides.git")

	dir, err := lib.SyncShared(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(repos.root, SharedDir), dir)
	require.Equal(t, []string{"https://github.com/acme/guides.git"}, repos.clones)
	require.Empty(t, repos.pulls)

	_, err = lib.SyncShared(context.Background())
	require.NoError(t, err)
	require.Len(t, repos.clones, 1)
	require.Equal(t, []string{dir}, repos.pulls)
}

func TestLibrary_SyncSharedNotConfigured(t *testing.T) {
	lib, _, _ := newLibrary(t, "")
	_, err := lib.SyncShared(context.Background())
	require.True(t, shiperrors.IsConfigError(err))
	require.Empty(t, lib.SharedPath())
}

func TestRender(t *testing.T) {
	require.Empty(t, Render(nil, nil))

	got := Render(
		[]Instruction{{Name: "go", ApplyTo: "**/*.go", Description: "Go style", Body: "Use gofmt."}},
		[]Skill{{Name: "release", Body: "Tag and push."}},
	)
	want := "# Repository Instructions\n\nFollow these instructions when working in this repository.\n" +
		"\n## go (applies to `**/*.go`)\nGo style\n\nUse gofmt.\n" +
		"\n# Skills\n\nUse these skills when the task calls for them.\n" +
		"\n## release\nTag and push."
	require.Equal(t, want, got)
}
