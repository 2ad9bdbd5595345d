package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"
)

const (
	maxReadBytes      = 200 * 1024
	maxCommandOutput  = 20 * 1024
	maxSearchMatches  = 200
	maxSearchFileSize = 1 << 20
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".workspaces":  true,
	"vendor":       true,
	"bin":          true,
	"obj":          true,
}

// Toolbox executes agent tool calls against a single workspace root.
// Every path argument is resolved relative to the root and rejected when
// it would escape it.
type Toolbox struct {
	root           string
	allowed        []string
	commandTimeout time.Duration
	readOnly       bool

	mu      sync.Mutex
	written map[string]bool
}

// NewToolbox creates a Toolbox rooted at root. allowed lists the program
// names run_command may execute.
func NewToolbox(root string, allowed []string, commandTimeout time.Duration) *Toolbox {
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}
	return &Toolbox{
		root:           filepath.Clean(root),
		allowed:        allowed,
		commandTimeout: commandTimeout,
		written:        make(map[string]bool),
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func reasoningProp(action string) map[string]any {
	return stringProp("Explain why you are " + action + ".")
}

// Definitions returns the tool schemas sent with every request.
func (t *Toolbox) Definitions() []anthropic.ToolUnionParam {
	defs := []anthropic.ToolParam{
		{
			Name:        "read_file",
			Description: anthropic.String("Read the complete content of a file from the repository."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"reasoning": reasoningProp("reading this file"),
					"path":      stringProp("The path to the file to read (relative to repository root)"),
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        "write_file",
			Description: anthropic.String("Create or overwrite a file in the repository with the given content."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"reasoning": reasoningProp("writing this file"),
					"path":      stringProp("The path to the file to write (relative to repository root)"),
					"content":   stringProp("The complete content to write to the file"),
				},
				Required: []string{"path", "content"},
			},
		},
		{
			Name:        "list_directory",
			Description: anthropic.String("List the contents of a directory. Directories end with a slash."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"reasoning": reasoningProp("listing this directory"),
					"path":      stringProp("The directory to list (relative to repository root, use '.' for root)"),
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        "search_codebase",
			Description: anthropic.String("Search file contents with a regular expression. Returns path:line: text matches."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"reasoning": reasoningProp("searching for this pattern"),
					"pattern":   stringProp("RE2 regular expression to search for"),
					"path":      stringProp("Optional directory to limit the search to (relative to repository root)"),
				},
				Required: []string{"pattern"},
			},
		},
		{
			Name: "run_command",
			Description: anthropic.String("Run a build or test command in the repository root, e.g. `go test ./...` or `npm test`. " +
				"No shell is involved: pipes, redirects and variable expansion are not supported."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"reasoning": reasoningProp("running this command"),
					"command":   stringProp("The command line to run"),
				},
				Required: []string{"command"},
			},
		},
	}

	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		if t.readOnly && defs[i].Name == "write_file" {
			continue
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &defs[i]})
	}
	return out
}

type toolInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Pattern string `json:"pattern"`
	Command string `json:"command"`
}

// Call runs the named tool. The returned error is reported back to the
// model as a failed tool result; it never aborts the run.
func (t *Toolbox) Call(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	var in toolInput
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return "", errors.Wrap(err, "invalid tool input")
		}
	}

	switch name {
	case "read_file":
		return t.readFile(in.Path)
	case "write_file":
		if t.readOnly {
			return "", errors.New("write_file is not available in this run")
		}
		return t.writeFile(in.Path, in.Content)
	case "list_directory":
		return t.listDirectory(in.Path)
	case "search_codebase":
		return t.search(ctx, in.Pattern, in.Path)
	case "run_command":
		return t.runCommand(ctx, in.Command)
	default:
		return "", errors.Newf("unknown tool: %q", name)
	}
}

// Detail returns a short description of a tool call for progress events.
func Detail(name string, raw json.RawMessage) string {
	var in toolInput
	_ = json.Unmarshal(raw, &in)
	switch name {
	case "search_codebase":
		return in.Pattern
	case "run_command":
		return in.Command
	default:
		return in.Path
	}
}

// Written returns the workspace-relative paths written so far, sorted.
func (t *Toolbox) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.written))
	for p := range t.written {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// resolve maps a model-supplied path to an absolute path inside root.
func (t *Toolbox) resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		p = "."
	}

	abs := p
	if !filepath.IsAbs(p) {
		abs = filepath.Join(t.root, p)
	}
	abs = filepath.Clean(abs)

	if !within(t.root, abs) || !t.realWithin(abs) {
		return "", errors.Newf("path %q is outside the workspace", p)
	}
	return abs, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// realWithin follows symlinks on the nearest existing ancestor of abs and
// checks the target is still under the real root. A dangling link is
// rejected since writing through it would create its target.
func (t *Toolbox) realWithin(abs string) bool {
	root, err := filepath.EvalSymlinks(t.root)
	if err != nil {
		root = t.root
	}
	for p := abs; ; p = filepath.Dir(p) {
		if _, err := os.Lstat(p); err == nil {
			real, err := filepath.EvalSymlinks(p)
			return err == nil && within(root, real)
		}
		if p == t.root || filepath.Dir(p) == p {
			return p == t.root
		}
	}
}

func (t *Toolbox) rel(abs string) string {
	rel, err := filepath.Rel(t.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func (t *Toolbox) readFile(p string) (string, error) {
	path, err := t.resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", p)
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (file truncated)", nil
	}
	return string(data), nil
}

func (t *Toolbox) writeFile(p, content string) (string, error) {
	path, err := t.resolve(p)
	if err != nil {
		return "", err
	}
	if path == t.root {
		return "", errors.New("path must name a file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory for %s", p)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", p)
	}

	rel := t.rel(path)
	t.mu.Lock()
	t.written[rel] = true
	t.mu.Unlock()

	return fmt.Sprintf("wrote %d bytes to %s", len(content), rel), nil
}

func (t *Toolbox) listDirectory(p string) (string, error) {
	path, err := t.resolve(p)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list %s", p)
	}

	var b strings.Builder
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		b.WriteString(e.Name())
		if e.IsDir() {
			b.WriteByte('/')
		}
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return "(empty directory)", nil
	}
	return b.String(), nil
}

func (t *Toolbox) search(ctx context.Context, pattern, p string) (string, error) {
	if pattern == "" {
		return "", errors.New("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", errors.Wrap(err, "invalid pattern")
	}
	start, err := t.resolve(p)
	if err != nil {
		return "", err
	}

	var matches []string
	truncated := false

	walkErr := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != start && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxSearchFileSize {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil || isBinary(data) {
			return nil
		}

		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), maxSearchFileSize)
		for line := 1; scanner.Scan(); line++ {
			if !re.Match(scanner.Bytes()) {
				continue
			}
			if len(matches) == maxSearchMatches {
				truncated = true
				return filepath.SkipAll
			}
			matches = append(matches, fmt.Sprintf("%s:%d: %s", t.rel(path), line, strings.TrimSpace(scanner.Text())))
		}
		return nil
	})
	if walkErr != nil {
		return "", errors.Wrap(walkErr, "search failed")
	}

	if len(matches) == 0 {
		return "no matches", nil
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n... (stopped after %d matches)", maxSearchMatches)
	}
	return out, nil
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.IndexByte(head, 0) >= 0
}

func (t *Toolbox) runCommand(ctx context.Context, command string) (string, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return "", errors.New("command is required")
	}
	if !slices.Contains(t.allowed, args[0]) {
		return "", errors.Newf("command %q is not allowed; allowed programs: %s", args[0], strings.Join(t.allowed, ", "))
	}

	ctx, cancel := context.WithTimeout(ctx, t.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = t.root
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := truncateOutput(out.String())

	if ctx.Err() == context.DeadlineExceeded {
		return output, errors.Newf("command timed out after %s", t.commandTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// A failing test run is a normal result the model should read.
			return fmt.Sprintf("exit status %d\n%s", exitErr.ExitCode(), output), nil
		}
		return output, errors.Wrapf(err, "failed to run %s", args[0])
	}
	return "exit status 0\n" + output, nil
}

// truncateOutput keeps the tail of long command output, where test
// failures and compiler errors usually are.
func truncateOutput(s string) string {
	if len(s) <= maxCommandOutput {
		return s
	}
	return "... (output truncated)\n" + s[len(s)-maxCommandOutput:]
}
