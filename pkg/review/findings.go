package review

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"thoreinstein.com/shipwright/pkg/hosting"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding is one issue reported by a review.
type Finding struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	FilePath    string   `json:"filePath,omitempty"`
	Line        int      `json:"line,omitempty"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Language    string   `json:"language,omitempty"`
}

var (
	sectionRe  = regexp.MustCompile(`^#{2,3}\s+(.+?)\s*$`)
	severityRe = regexp.MustCompile(`(?i)^\s*[-*]?\s*\*\*severity:?\*\*:?\s*\[?([a-z]+)\]?`)
	tagRe      = regexp.MustCompile(`(?i)\[(critical|high|medium|low|info|blocker|major|minor|nit)\]`)
	fileRe     = regexp.MustCompile("(?i)^\\s*[-*]?\\s*\\*\\*(?:file|location):?\\*\\*:?\\s*`?([^`\\s]+)`?")
	lineRe     = regexp.MustCompile(`(?i)^\s*[-*]?\s*\*\*line:?\*\*:?\s*(\d+)`)
	numberRe   = regexp.MustCompile(`(?i)^(?:finding\s+)?#?\d+[.:)]\s*`)
)

// ParseSeverity normalizes a severity word. Unknown words yield "".
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker":
		return SeverityCritical
	case "high", "major":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low", "minor":
		return SeverityLow
	case "info", "informational", "nit", "suggestion":
		return SeverityInfo
	}
	return ""
}

type rawSection struct {
	heading string
	lines   []string
}

// ParseFindings extracts findings from a Markdown review report. Each
// "##" or "###" section that names a severity or a file is a finding;
// other sections (an overall summary, for instance) are ignored. A
// section with a file but no severity is medium.
func ParseFindings(markdown string) []Finding {
	var sections []rawSection
	inFence := false

	for _, line := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence {
			if m := sectionRe.FindStringSubmatch(line); m != nil {
				sections = append(sections, rawSection{heading: m[1]})
				continue
			}
		}
		if len(sections) > 0 {
			sections[len(sections)-1].lines = append(sections[len(sections)-1].lines, line)
		}
	}

	var findings []Finding
	for _, sec := range sections {
		f, ok := parseSection(sec)
		if !ok {
			continue
		}
		f.ID = "F" + strconv.Itoa(len(findings)+1)
		findings = append(findings, f)
	}
	return findings
}

func parseSection(sec rawSection) (Finding, bool) {
	f := Finding{Title: sec.heading}

	if m := tagRe.FindStringSubmatch(f.Title); m != nil {
		f.Severity = ParseSeverity(m[1])
		f.Title = strings.TrimSpace(strings.Replace(f.Title, m[0], "", 1))
	}
	f.Title = strings.Trim(numberRe.ReplaceAllString(f.Title, ""), "*: ")

	var desc []string
	var code []string
	inFence, fenceDone := false, false

	for _, line := range sec.lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if !inFence && !fenceDone {
				inFence = true
				f.Language = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				continue
			}
			if inFence {
				inFence = false
				fenceDone = true
				continue
			}
		}
		if inFence {
			code = append(code, line)
			continue
		}

		if m := severityRe.FindStringSubmatch(line); m != nil {
			if sev := ParseSeverity(m[1]); sev != "" {
				f.Severity = sev
			}
			continue
		}
		if m := fileRe.FindStringSubmatch(line); m != nil {
			f.FilePath, f.Line = splitLocation(m[1])
			continue
		}
		if m := lineRe.FindStringSubmatch(line); m != nil {
			f.Line, _ = strconv.Atoi(m[1])
			continue
		}
		if f.Severity == "" {
			if m := tagRe.FindStringSubmatch(trimmed); m != nil && strings.HasPrefix(trimmed, m[0]) {
				f.Severity = ParseSeverity(m[1])
				trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, m[0]))
				line = trimmed
			}
		}
		desc = append(desc, line)
	}

	if f.Severity == "" && f.FilePath == "" {
		return Finding{}, false
	}
	if f.Severity == "" {
		f.Severity = SeverityMedium
	}

	f.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	if len(code) > 0 {
		f.Suggestion = strings.Join(code, "\n")
	}
	return f, true
}

// splitLocation splits "path:42" or "path:42-50" into path and first line.
func splitLocation(loc string) (string, int) {
	loc = strings.Trim(loc, "`,.;")
	i := strings.LastIndex(loc, ":")
	if i <= 0 {
		return loc, 0
	}
	num := loc[i+1:]
	if j := strings.IndexAny(num, "-–"); j >= 0 {
		num = num[:j]
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return loc, 0
	}
	return loc[:i], n
}

// FormatComment renders a finding as a pull request comment body.
func FormatComment(f Finding) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("**[%s] %s**\n\n", strings.ToUpper(string(f.Severity)), f.Title))
	if f.Description != "" {
		sb.WriteString(f.Description)
		sb.WriteString("\n")
	}
	if f.Suggestion != "" {
		sb.WriteString("\n**Suggestion:**\n\n```")
		sb.WriteString(f.Language)
		sb.WriteString("\n")
		sb.WriteString(f.Suggestion)
		sb.WriteString("\n```\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ToComment converts a finding into a provider-neutral comment anchored to
// its file and line when known.
func ToComment(f Finding) hosting.Comment {
	return hosting.Comment{
		FilePath: f.FilePath,
		Line:     f.Line,
		Body:     FormatComment(f),
	}
}

// Select returns the findings whose IDs are listed, in the order given.
// Unknown IDs are returned separately.
func Select(findings []Finding, ids []string) ([]Finding, []string) {
	byID := make(map[string]Finding, len(findings))
	for _, f := range findings {
		byID[f.ID] = f
	}

	var selected []Finding
	var unknown []string
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			selected = append(selected, f)
			continue
		}
		unknown = append(unknown, id)
	}
	return selected, unknown
}
