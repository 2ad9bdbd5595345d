package instructions

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/git"
)

// Repos is the subset of git.Manager the library needs to keep the shared
// instructions checkout current.
type Repos interface {
	Root() string
	CloneTo(ctx context.Context, remoteURL, dir string) error
	Pull(ctx context.Context, path string) error
}

// Library manages instructions in a workspace and in the shared
// instructions checkout.
type Library struct {
	sharedRepo string
	repos      Repos
	verbose    bool
	logger     *slog.Logger

	syncMu sync.Mutex
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets a custom logger for the library.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// NewLibrary creates a Library. repos may be nil when no shared
// repository is configured.
func NewLibrary(cfg config.InstructionsConfig, repos Repos, verbose bool, opts ...Option) *Library {
	l := &Library{
		sharedRepo: strings.TrimSpace(cfg.SharedRepo),
		repos:      repos,
		verbose:    verbose,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) logDebug(msg string, args ...any) {
	if l.verbose {
		l.logger.Debug(msg, args...)
	}
}

// SharedPath returns the shared checkout location, or "" when none is
// configured.
func (l *Library) SharedPath() string {
	if l.sharedRepo == "" || l.repos == nil {
		return ""
	}
	return filepath.Join(l.repos.Root(), SharedDir)
}

func workspaceDir(workspace string) string {
	return filepath.Join(workspace, filepath.FromSlash(InstructionsDir))
}

// List returns workspace instructions followed by shared ones. A shared
// instruction with the same name as a workspace one is hidden.
func (l *Library) List(workspace string) ([]Instruction, error) {
	var out []Instruction
	seen := make(map[string]bool)

	if workspace != "" {
		local, err := LoadInstructions(workspaceDir(workspace), SourceWorkspace, l.logger)
		if err != nil {
			return nil, err
		}
		for _, inst := range local {
			seen[inst.Name] = true
			out = append(out, inst)
		}
	}

	if shared := l.SharedPath(); shared != "" {
		remote, err := LoadInstructions(workspaceDir(shared), SourceShared, l.logger)
		if err != nil {
			return nil, err
		}
		for _, inst := range remote {
			if !seen[inst.Name] {
				out = append(out, inst)
			}
		}
	}

	return out, nil
}

// Skills returns workspace skills followed by shared ones.
func (l *Library) Skills(workspace string) ([]Skill, error) {
	var out []Skill
	seen := make(map[string]bool)

	roots := []struct {
		dir    string
		source Source
	}{
		{workspace, SourceWorkspace},
		{l.SharedPath(), SourceShared},
	}
	for _, root := range roots {
		if root.dir == "" {
			continue
		}
		skills, err := LoadSkills(filepath.Join(root.dir, filepath.FromSlash(SkillsDir)), root.source, l.logger)
		if err != nil {
			return nil, err
		}
		for _, s := range skills {
			if !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// Get returns one instruction by name, preferring the workspace copy.
func (l *Library) Get(workspace, name string) (*Instruction, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, shiperrors.NewValidationError("name", err.Error())
	}

	all, err := l.List(workspace)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, shiperrors.NewNotFoundError("instruction", name)
}

// Save writes content to the workspace instruction file for name. The
// content may carry frontmatter; it must parse.
func (l *Library) Save(workspace, name, content string) (*Instruction, error) {
	if workspace == "" {
		return nil, shiperrors.NewWorkflowError("instructions", "open a workspace before editing instructions")
	}
	name, err := ValidateName(name)
	if err != nil {
		return nil, shiperrors.NewValidationError("name", err.Error())
	}
	if strings.TrimSpace(content) == "" {
		return nil, shiperrors.NewValidationError("content", "content is required")
	}
	if _, _, err := ParseFrontmatter([]byte(content)); err != nil {
		return nil, shiperrors.NewValidationError("content", err.Error())
	}

	dir := workspaceDir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", dir)
	}

	path := filepath.Join(dir, name+FileSuffix)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", path)
	}

	l.logDebug("saved instruction", "name", name, "path", path)
	return loadInstruction(path, SourceWorkspace)
}

// Delete removes a workspace instruction. Shared instructions are read-only.
func (l *Library) Delete(workspace, name string) error {
	if workspace == "" {
		return shiperrors.NewWorkflowError("instructions", "open a workspace before editing instructions")
	}
	name, err := ValidateName(name)
	if err != nil {
		return shiperrors.NewValidationError("name", err.Error())
	}

	path := filepath.Join(workspaceDir(workspace), name+FileSuffix)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return shiperrors.NewNotFoundError("instruction", name)
		}
		return errors.Wrapf(err, "failed to delete %s", path)
	}

	l.logDebug("deleted instruction", "name", name, "path", path)
	return nil
}

// SyncShared clones the shared instructions repository, or fast-forwards
// an existing checkout, and returns its path.
func (l *Library) SyncShared(ctx context.Context) (string, error) {
	dir := l.SharedPath()
	if dir == "" {
		return "", shiperrors.NewConfigError("instructions.shared_repo", "no shared instructions repository configured (set SHARED_INSTRUCTIONS_REPO)")
	}

	l.syncMu.Lock()
	defer l.syncMu.Unlock()

	if git.IsGitRepo(dir) {
		l.logger.Info("updating shared instructions", "path", dir)
		if err := l.repos.Pull(ctx, dir); err != nil {
			return "", errors.Wrap(err, "failed to update shared instructions")
		}
		return dir, nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return "", errors.Wrapf(err, "failed to clear %s", dir)
	}
	l.logger.Info("cloning shared instructions", "repo", l.sharedRepo, "path", dir)
	if err := l.repos.CloneTo(ctx, l.sharedRepo, dir); err != nil {
		return "", errors.Wrap(err, "failed to clone shared instructions")
	}
	return dir, nil
}

// Render builds the guidance section appended to agent and planner system
// prompts. It returns "" when there is nothing to add.
func (l *Library) Render(workspace string) (string, error) {
	insts, err := l.List(workspace)
	if err != nil {
		return "", err
	}
	skills, err := l.Skills(workspace)
	if err != nil {
		return "", err
	}
	return Render(insts, skills), nil
}

// Render formats instructions and skills as Markdown.
func Render(insts []Instruction, skills []Skill) string {
	var sb strings.Builder

	if len(insts) > 0 {
		sb.WriteString("# Repository Instructions\n\nFollow these instructions when working in this repository.\n")
		for _, inst := range insts {
			sb.WriteString("\n## ")
			sb.WriteString(inst.Name)
			if inst.ApplyTo != "" {
				sb.WriteString(fmt.Sprintf(" (applies to `%s`)", inst.ApplyTo))
			}
			sb.WriteString("\n")
			if inst.Description != "" {
				sb.WriteString(inst.Description)
				sb.WriteString("\n\n")
			}
			sb.WriteString(inst.Body)
			sb.WriteString("\n")
		}
	}

	if len(skills) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("# Skills\n\nUse these skills when the task calls for them.\n")
		for _, s := range skills {
			sb.WriteString("\n## ")
			sb.WriteString(s.Name)
			sb.WriteString("\n")
			if s.Description != "" {
				sb.WriteString(s.Description)
				sb.WriteString("\n\n")
			}
			sb.WriteString(s.Body)
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
