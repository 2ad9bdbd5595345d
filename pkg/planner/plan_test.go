package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantSummary string
		wantSteps   string
	}{
		{
			name: "both headings",
			text: "## Summary\nAdd a retry to the client.\n\n## Implementation Plan\n1. Wrap calls\n2. Add tests\n",
			wantSummary: "Add a retry to the client.",
			wantSteps:   "1. Wrap calls\n2. Add tests",
		},
		{
			name:        "bold headings with colons",
			text:        "**Summary:**\nFix the login bug.\n\n**Plan:**\n1. Reproduce\n2. Fix",
			wantSummary: "Fix the login bug.",
			wantSteps:   "1. Reproduce\n2. Fix",
		},
		{
			name:        "review plan heading",
			text:        "# Summary\nRefactors storage.\n# Review Plan\n1. Check migrations",
			wantSummary: "Refactors storage.",
			wantSteps:   "1. Check migrations",
		},
		{
			name:        "sub-headings stay in the plan",
			text:        "## Summary\nS\n## Implementation Plan\n### Step 1\nDo it\n### Risks\nNone",
			wantSummary: "S",
			wantSteps:   "### Step 1\nDo it\n### Risks\nNone",
		},
		{
			name:        "plan heading only uses preamble as summary",
			text:        "# Ticket 42\nThis adds caching.\n\n## Implementation Plan\n1. Cache",
			wantSummary: "This adds caching.",
			wantSteps:   "1. Cache",
		},
		{
			name:        "summary heading only",
			text:        "## Summary\nShort one.\n\n## Notes\nMore detail.",
			wantSummary: "Short one.",
			wantSteps:   "## Notes\nMore detail.",
		},
		{
			name:        "no headings falls back to first paragraph",
			text:        "We will rename the flag.\n\n1. Rename\n2. Update docs",
			wantSummary: "We will rename the flag.",
			wantSteps:   "1. Rename\n2. Update docs",
		},
		{
			name:        "single paragraph",
			text:        "Just one paragraph.",
			wantSummary: "Just one paragraph.",
			wantSteps:   "",
		},
		{
			name:        "inline bold is not a heading",
			text:        "## Summary\n**Note:** keep the API stable.\n## Implementation Plan\n1. Go",
			wantSummary: "**Note:** keep the API stable.",
			wantSteps:   "1. Go",
		},
		{
			name:        "crlf",
			text:        "## Summary\r\nA\r\n## Plan\r\nB\r\n",
			wantSummary: "A",
			wantSteps:   "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePlan(tt.text)
			require.Equal(t, tt.wantSummary, got.Summary)
			require.Equal(t, tt.wantSteps, got.Steps)
			require.NotEmpty(t, got.Raw)
		})
	}
}

func TestParsePlan_Empty(t *testing.T) {
	got := ParsePlan("   \n")
	require.Equal(t, Plan{}, got)
}
