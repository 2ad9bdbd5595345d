package review

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"thoreinstein.com/shipwright/pkg/hosting"
)

const reportFixture = "## Review Summary\n" +
	"The change is mostly solid. Three issues below.\n\n" +
	"### 1. SQL built with string concatenation\n" +
	"**Severity:** critical\n" +
	"**File:** `internal/store/users.go:88`\n\n" +
	"The query interpolates the user name directly.\n\n" +
	"```go\n" +
	"row := db.QueryRow(\"SELECT id FROM users WHERE name = ?\", name)\n" +
	"```\n\n" +
	"### [HIGH] Error from Close is ignored\n" +
	"**File:** `internal/store/db.go:12-20`\n\n" +
	"Deferred Close drops the error on write paths.\n\n" +
	"### Missing test for empty input\n" +
	"- **Severity:** Minor\n" +
	"- **File:** `pkg/parse/parse.go`\n" +
	"- **Line:** 40\n\n" +
	"Parse(\"\") is not covered.\n\n" +
	"```\n" +
	"## not a heading inside a fence\n" +
	"```\n\n" +
	"### Readme wording\n" +
	"[NIT] The README says \"recieve\".\n\n" +
	"## Conclusion\n" +
	"Approve after fixing the SQL issue.\n"

func TestParseFindings(t *testing.T) {
	got := ParseFindings(reportFixture)

	want := []Finding{
		{
			ID:          "F1",
			Title:       "SQL built with string concatenation",
			Severity:    SeverityCritical,
			FilePath:    "internal/store/users.go",
			Line:        88,
			Description: "The query interpolates the user name directly.",
			Suggestion:  "row := db.QueryRow(\"SELECT id FROM users WHERE name = ?\", name)",
			Language:    "go",
		},
		{
			ID:          "F2",
			Title:       "Error from Close is ignored",
			Severity:    SeverityHigh,
			FilePath:    "internal/store/db.go",
			Line:        12,
			Description: "Deferred Close drops the error on write paths.",
		},
		{
			ID:          "F3",
			Title:       "Missing test for empty input",
			Severity:    SeverityLow,
			FilePath:    "pkg/parse/parse.go",
			Line:        40,
			Description: "Parse(\"\") is not covered.",
			Suggestion:  "## not a heading inside a fence",
		},
		{
			ID:          "F4",
			Title:       "Readme wording",
			Severity:    SeverityInfo,
			Description: "The README says \"recieve\".",
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseFindings() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFindings_NoIssues(t *testing.T) {
	require.Empty(t, ParseFindings("## Summary\nLooks good to me.\n"))
	require.Empty(t, ParseFindings(""))
}

func TestParseFindings_FileWithoutSeverityDefaultsToMedium(t *testing.T) {
	got := ParseFindings("### Leaky goroutine\n**File:** `worker.go:7`\nThe worker never exits.\n")
	require.Len(t, got, 1)
	require.Equal(t, SeverityMedium, got[0].Severity)
	require.Equal(t, 7, got[0].Line)
}

func TestParseSeverity(t *testing.T) {
	tests := map[string]Severity{
		"Critical": SeverityCritical,
		"blocker":  SeverityCritical,
		"HIGH":     SeverityHigh,
		"major":    SeverityHigh,
		"moderate": SeverityMedium,
		"minor":    SeverityLow,
		"nit":      SeverityInfo,
		" info ":   SeverityInfo,
		"urgent":   "",
	}
	for in, want := range tests {
		require.Equal(t, want, ParseSeverity(in), in)
	}
}

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		in       string
		wantPath string
		wantLine int
	}{
		{"main.go:42", "main.go", 42},
		{"main.go:42-50", "main.go", 42},
		{"main.go", "main.go", 0},
		{"C:/src/main.go", "C:/src/main.go", 0},
		{"`a/b.go:3`,", "a/b.go", 3},
	}
	for _, tt := range tests {
		path, line := splitLocation(tt.in)
		require.Equal(t, tt.wantPath, path, tt.in)
		require.Equal(t, tt.wantLine, line, tt.in)
	}
}

func TestFormatComment(t *testing.T) {
	f := Finding{
		Title:       "Error ignored",
		Severity:    SeverityHigh,
		Description: "Close error is dropped.",
		Suggestion:  "if err := f.Close(); err != nil {\n\treturn err\n}",
		Language:    "go",
	}

	got := FormatComment(f)
	require.True(t, strings.HasPrefix(got, "**[HIGH] Error ignored**\n\nClose error is dropped.\n"))
	require.Contains(t, got, "```go\nif err := f.Close()")
	require.True(t, strings.HasSuffix(got, "```"))

	require.Equal(t, "**[INFO] Typo**\n\nFix it.", FormatComment(Finding{Title: "Typo", Severity: SeverityInfo, Description: "Fix it."}))

	c := ToComment(Finding{Title: "T", Severity: SeverityLow, FilePath: "a.go", Line: 3})
	require.Equal(t, hosting.Comment{FilePath: "a.go", Line: 3, Body: "**[LOW] T**"}, c)
}

func TestSelect(t *testing.T) {
	findings := []Finding{{ID: "F1"}, {ID: "F2"}, {ID: "F3"}}
	selected, unknown := Select(findings, []string{"F3", "F9", "F1"})
	require.Equal(t, []Finding{{ID: "F3"}, {ID: "F1"}}, selected)
	require.Equal(t, []string{"F9"}, unknown)
}
