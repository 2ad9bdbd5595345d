// Package diff summarizes unified diffs produced by git for display and
// for review prompts.
package diff

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/waigani/diffparser"
)

// Status describes what happened to a file.
type Status string

const (
	StatusAdded    Status = "added"
	StatusModified Status = "modified"
	StatusDeleted  Status = "deleted"
	StatusRenamed  Status = "renamed"
)

// Hunk is one @@ section of a file diff.
type Hunk struct {
	Header   string `json:"header"`
	OldStart int    `json:"oldStart"`
	OldLines int    `json:"oldLines"`
	NewStart int    `json:"newStart"`
	NewLines int    `json:"newLines"`
	Body     string `json:"body"`
}

// FileChange summarizes the changes to one file.
type FileChange struct {
	Path      string `json:"path"`
	OldPath   string `json:"oldPath,omitempty"`
	Status    Status `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Hunks     []Hunk `json:"hunks,omitempty"`
}

// Summary totals a parsed diff.
type Summary struct {
	Files     []FileChange `json:"files"`
	Additions int          `json:"additions"`
	Deletions int          `json:"deletions"`
	Raw       string       `json:"raw"`
}

// Empty reports whether the diff has no file changes.
func (s *Summary) Empty() bool {
	return len(s.Files) == 0
}

// Parse parses raw `git diff` output. An empty input yields an empty
// summary.
func Parse(raw string) (*Summary, error) {
	s := &Summary{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return s, nil
	}

	parsed, err := diffparser.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse diff")
	}

	headers := scanHeaders(raw)
	for i, f := range parsed.Files {
		var h header
		if i < len(headers) {
			h = headers[i]
		}
		fc := fileChange(f, h)
		s.Additions += fc.Additions
		s.Deletions += fc.Deletions
		s.Files = append(s.Files, fc)
	}

	return s, nil
}

// header holds the git extended header lines of one file section.
// diffparser only reads the ---/+++ lines, which git omits for pure
// renames, mode changes and binary files.
type header struct {
	oldPath    string
	newPath    string
	renameFrom string
	renameTo   string
	newFile    bool
	deleted    bool
}

// scanHeaders returns one header per "diff " line of raw, in order.
func scanHeaders(raw string) []header {
	var (
		out    []header
		inBody bool
	)
	for _, l := range strings.Split(raw, "\n") {
		if strings.HasPrefix(l, "diff ") {
			h := header{}
			h.oldPath, h.newPath = gitHeaderPaths(l)
			out = append(out, h)
			inBody = false
			continue
		}
		if len(out) == 0 || inBody {
			continue
		}
		h := &out[len(out)-1]
		switch {
		case strings.HasPrefix(l, "@@ "):
			inBody = true
		case strings.HasPrefix(l, "rename from "):
			h.renameFrom = strings.TrimPrefix(l, "rename from ")
		case strings.HasPrefix(l, "rename to "):
			h.renameTo = strings.TrimPrefix(l, "rename to ")
		case strings.HasPrefix(l, "new file mode "):
			h.newFile = true
		case strings.HasPrefix(l, "deleted file mode "):
			h.deleted = true
		}
	}
	return out
}

// gitHeaderPaths splits "diff --git a/<old> b/<new>".
func gitHeaderPaths(line string) (string, string) {
	rest := strings.TrimPrefix(line, "diff --git ")
	if !strings.HasPrefix(rest, "a/") {
		return "", ""
	}
	i := strings.Index(rest, " b/")
	if i < 0 {
		return "", ""
	}
	return rest[2:i], rest[i+3:]
}

func fileChange(f *diffparser.DiffFile, h header) FileChange {
	oldName, newName := f.OrigName, f.NewName
	if oldName == "" && newName == "" {
		oldName, newName = h.oldPath, h.newPath
		if h.renameFrom != "" {
			oldName, newName = h.renameFrom, h.renameTo
		}
	}

	fc := FileChange{Path: newName}
	switch {
	case f.Mode == diffparser.NEW || h.newFile:
		fc.Status = StatusAdded
	case f.Mode == diffparser.DELETED || h.deleted:
		fc.Status = StatusDeleted
		fc.Path = oldName
	case h.renameFrom != "" || (oldName != "" && newName != "" && oldName != newName):
		fc.Status = StatusRenamed
		fc.OldPath = oldName
	default:
		fc.Status = StatusModified
	}
	if fc.Path == "" {
		fc.Path = oldName
	}

	for _, h := range f.Hunks {
		var body strings.Builder
		for _, l := range h.WholeRange.Lines {
			switch l.Mode {
			case diffparser.ADDED:
				fc.Additions++
				body.WriteString("+")
			case diffparser.REMOVED:
				fc.Deletions++
				body.WriteString("-")
			default:
				body.WriteString(" ")
			}
			body.WriteString(l.Content)
			body.WriteString("\n")
		}

		fc.Hunks = append(fc.Hunks, Hunk{
			Header:   h.HunkHeader,
			OldStart: h.OrigRange.Start,
			OldLines: h.OrigRange.Length,
			NewStart: h.NewRange.Start,
			NewLines: h.NewRange.Length,
			Body:     body.String(),
		})
	}

	return fc
}

// Truncate shortens raw to at most max bytes on a line boundary and
// appends a marker when anything was dropped. Review prompts use it to
// stay inside model context limits.
func Truncate(raw string, max int) string {
	if max <= 0 || len(raw) <= max {
		return raw
	}
	cut := strings.LastIndexByte(raw[:max], '\n')
	if cut <= 0 {
		cut = max
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
	}
	return raw[:cut] + "\n... (diff truncated)\n"
}
