// Package instructions loads repository guidance for the agent and the
// planner: instruction files under .github/instructions, skills under
// .github/skills, and a shared instructions repository synced next to the
// workspaces.
package instructions

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"go.yaml.in/yaml/v3"
)

const (
	InstructionsDir = ".github/instructions"
	SkillsDir       = ".github/skills"
	FileSuffix      = ".instructions.md"
	SkillFile       = "SKILL.md"
	SharedDir       = ".shared-instructions"
)

// Source tells where an instruction or skill was loaded from.
type Source string

const (
	SourceWorkspace Source = "workspace"
	SourceShared    Source = "shared"
)

// Instruction is one *.instructions.md file.
type Instruction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ApplyTo     string `json:"applyTo,omitempty"`
	Body        string `json:"body"`
	Content     string `json:"content"`
	Path        string `json:"path"`
	Source      Source `json:"source"`
}

// Skill is a .github/skills/<name>/SKILL.md file.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Body        string `json:"body"`
	Path        string `json:"path"`
	Source      Source `json:"source"`
}

// Frontmatter is the YAML header of instruction and skill files.
type Frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ApplyTo     string `yaml:"applyTo"`
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)

// ValidateName checks an instruction name. A trailing .instructions.md is
// accepted and stripped.
func ValidateName(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), FileSuffix)
	if !nameRe.MatchString(name) || strings.Contains(name, "..") {
		return "", errors.Newf("invalid instruction name %q: use letters, digits, '.', '-' and '_' only", name)
	}
	return name, nil
}

// ParseFrontmatter splits an optional leading "---" YAML block from the
// Markdown body.
func ParseFrontmatter(data []byte) (Frontmatter, string, error) {
	var fm Frontmatter

	text := string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	if !strings.HasPrefix(text, "---\n") {
		return fm, strings.TrimSpace(text), nil
	}

	rest := text[len("---\n"):]
	var header, body string
	if strings.HasPrefix(rest, "---") {
		body = rest[len("---"):]
	} else {
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return fm, "", errors.New("frontmatter is not terminated by ---")
		}
		header, body = rest[:end], rest[end+len("\n---"):]
	}
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", errors.Wrap(err, "invalid frontmatter")
	}

	return fm, strings.TrimSpace(body), nil
}
