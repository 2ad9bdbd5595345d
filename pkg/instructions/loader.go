package instructions

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// LoadInstructions reads every *.instructions.md file directly under dir.
// A missing dir yields no instructions. Files with broken frontmatter are
// skipped with a warning.
func LoadInstructions(dir string, source Source, logger *slog.Logger) ([]Instruction, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", dir)
	}

	var out []Instruction
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileSuffix) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		inst, err := loadInstruction(path, source)
		if err != nil {
			logger.Warn("skipping instruction file", "path", path, "error", err)
			continue
		}
		out = append(out, *inst)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func loadInstruction(path string, source Source) (*Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fm, body, err := ParseFrontmatter(data)
	if err != nil {
		return nil, err
	}
	return &Instruction{
		Name:        strings.TrimSuffix(filepath.Base(path), FileSuffix),
		Description: fm.Description,
		ApplyTo:     fm.ApplyTo,
		Body:        body,
		Content:     string(data),
		Path:        path,
		Source:      source,
	}, nil
}

// LoadSkills reads dir/<name>/SKILL.md for every subdirectory of dir.
func LoadSkills(dir string, source Source, logger *slog.Logger) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", dir)
	}

	var out []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name(), SkillFile)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			logger.Warn("skipping skill", "path", path, "error", err)
			continue
		}

		fm, body, err := ParseFrontmatter(data)
		if err != nil {
			logger.Warn("skipping skill", "path", path, "error", err)
			continue
		}

		skill := Skill{
			Name:        entry.Name(),
			Description: fm.Description,
			Body:        body,
			Path:        path,
			Source:      source,
		}
		if fm.Name != "" {
			skill.Name = fm.Name
		}
		out = append(out, skill)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
