// Package review builds code review prompts, parses review findings out of
// the agent's Markdown report and formats them as pull request comments.
package review

import (
	"fmt"
	"strings"

	"thoreinstein.com/shipwright/pkg/diff"
	"thoreinstein.com/shipwright/pkg/hosting"
)

// SystemPrompt instructs the review agent on the report format that
// ParseFindings understands.
const SystemPrompt = `You are a meticulous senior engineer reviewing a pull request.
You can read files and search the repository to understand the change in context.
Do not modify any files.

Report every issue as its own Markdown section:

### <short title>
**Severity:** critical | high | medium | low | info
**File:** ` + "`path/to/file.ext:LINE`" + `

Explain the problem and why it matters.

` + "```language" + `
suggested replacement code, when you have one
` + "```" + `

Only report real problems: bugs, security issues, missing error handling,
race conditions, missing tests, misleading names. If the change looks good,
say so in one sentence and report no sections.`

const maxDiffLen = 60000

// BuildReviewPrompt assembles the user prompt for a review run. plan is
// the review plan approved by the developer and may be empty.
func BuildReviewPrompt(pr *hosting.PullRequest, plan string, rawDiff string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Review pull request #%d: %s\n\n", pr.ID, pr.Title))
	sb.WriteString(fmt.Sprintf("Author: %s\nBranches: %s -> %s\n\n", pr.Author, pr.SourceBranch, pr.TargetBranch))

	if pr.Description != "" {
		sb.WriteString("## Description\n")
		sb.WriteString(pr.Description)
		sb.WriteString("\n\n")
	}

	if strings.TrimSpace(plan) != "" {
		sb.WriteString("## Review Plan\nFollow this plan:\n")
		sb.WriteString(plan)
		sb.WriteString("\n\n")
	}

	if summary, err := diff.Parse(rawDiff); err == nil && !summary.Empty() {
		sb.WriteString(fmt.Sprintf("## Changed Files (%d files, +%d/-%d)\n", len(summary.Files), summary.Additions, summary.Deletions))
		for _, f := range summary.Files {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", f.Path, f.Status))
		}
		sb.WriteString("\n## Diff\n```diff\n")
		sb.WriteString(diff.Truncate(rawDiff, maxDiffLen))
		sb.WriteString("\n```\n\n")
	}

	sb.WriteString("Review the change and report your findings in the required format.")
	return sb.String()
}
