package planner

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"thoreinstein.com/shipwright/pkg/ado"
	"thoreinstein.com/shipwright/pkg/diff"
	"thoreinstein.com/shipwright/pkg/hosting"
)

// SystemPromptTicket is the system prompt for ticket implementation plans.
const SystemPromptTicket = `You are a senior software engineer planning the implementation of a work item.

Your plan will be reviewed by a developer and then handed to a coding agent that
edits the repository, so it must be concrete and ordered.

Guidelines:
- Restate the goal in your own words before planning
- Name the files, packages or components you expect to touch
- Break the work into small numbered steps, each independently verifiable
- Call out tests to add or update
- List open questions and risks instead of guessing

Respond in Markdown with exactly these sections:

## Summary
A 2-4 sentence description of what will change and why.

## Implementation Plan
Numbered steps. Mention files and tests explicitly.`

// SystemPromptReview is the system prompt for pull request review plans.
const SystemPromptReview = `You are a senior software engineer preparing to review a pull request.

Produce a review plan: what to look at, in what order, and which risks deserve
attention. The plan is reviewed by a developer before an agent performs the review.

Guidelines:
- Focus on correctness, security, error handling and test coverage
- Point at specific files or areas of the change
- Mention existing reviewer comments that still need follow-up
- Keep it short; a reviewer should be able to follow it in minutes

Respond in Markdown with exactly these sections:

## Summary
A 2-4 sentence description of what the pull request does.

## Review Plan
Numbered focus areas, most important first.`

// SystemPromptDiscuss is appended to the plan system prompt for free-form
// discussion turns.
const SystemPromptDiscuss = `The developer wants to discuss the plan below before anything is changed.
Answer their questions directly and concisely. Do not rewrite the whole plan
unless asked; suggest targeted changes instead.`

// SystemPromptImplement is the base system prompt of the coding agent.
const SystemPromptImplement = `You are a senior software engineer implementing a work item in the
repository you have been given. Use the tools to explore the code before
changing it, follow the conventions you find, and keep changes focused on
the plan.

After editing, build and run the tests with run_command when the project has
them, and fix what fails. Do not commit; the developer reviews the diff.

Finish with a short summary of what you changed and anything left undone.`

const (
	maxDescriptionLen = 4000
	maxFilesListed    = 50
	maxCommentsListed = 20
)

// TicketSubject describes a work item for the planning prompt.
func TicketSubject(wi *ado.WorkItem) string {
	var sb strings.Builder

	sb.WriteString("## Work Item\n")
	sb.WriteString(fmt.Sprintf("**ID:** %d\n", wi.ID))
	sb.WriteString(fmt.Sprintf("**Type:** %s\n", wi.Type))
	sb.WriteString(fmt.Sprintf("**Title:** %s\n", wi.Title))
	sb.WriteString(fmt.Sprintf("**State:** %s\n", wi.State))
	if len(wi.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("**Tags:** %s\n", strings.Join(wi.Tags, ", ")))
	}
	if wi.FigmaURL != "" {
		sb.WriteString(fmt.Sprintf("**Design:** %s\n", wi.FigmaURL))
	}
	sb.WriteString("\n")

	if wi.Description != "" {
		sb.WriteString("## Description\n")
		sb.WriteString(truncate(wi.Description, maxDescriptionLen))
		sb.WriteString("\n\n")
	}

	if wi.AcceptanceCriteria != "" {
		sb.WriteString("## Acceptance Criteria\n")
		sb.WriteString(truncate(wi.AcceptanceCriteria, maxDescriptionLen))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// PullRequestSubject describes a pull request for the review planning
// prompt. files and existing are optional.
func PullRequestSubject(pr *hosting.PullRequest, files []diff.FileChange, existing []hosting.Comment) string {
	var sb strings.Builder

	sb.WriteString("## Pull Request\n")
	sb.WriteString(fmt.Sprintf("**ID:** %d\n", pr.ID))
	sb.WriteString(fmt.Sprintf("**Title:** %s\n", pr.Title))
	sb.WriteString(fmt.Sprintf("**Author:** %s\n", pr.Author))
	sb.WriteString(fmt.Sprintf("**Branches:** %s -> %s\n", pr.SourceBranch, pr.TargetBranch))
	if pr.IsDraft {
		sb.WriteString("**Draft:** yes\n")
	}
	sb.WriteString("\n")

	if pr.Description != "" {
		sb.WriteString("## Description\n")
		sb.WriteString(truncate(pr.Description, maxDescriptionLen))
		sb.WriteString("\n\n")
	}

	if len(pr.Reviewers) > 0 {
		sb.WriteString("## Reviewers\n")
		for _, r := range pr.Reviewers {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", r.Name, r.VoteLabel))
		}
		sb.WriteString("\n")
	}

	if len(files) > 0 {
		sb.WriteString("## Files Changed\n")
		shown := files
		if len(shown) > maxFilesListed {
			shown = shown[:maxFilesListed]
			sb.WriteString(fmt.Sprintf("(showing first %d of %d files)\n", maxFilesListed, len(files)))
		}
		for _, f := range shown {
			sb.WriteString(fmt.Sprintf("- %s (%s, +%d/-%d)\n", f.Path, f.Status, f.Additions, f.Deletions))
		}
		sb.WriteString("\n")
	}

	if len(existing) > 0 {
		sb.WriteString("## Existing Comments\n")
		shown := existing
		if len(shown) > maxCommentsListed {
			shown = shown[len(shown)-maxCommentsListed:]
		}
		for _, c := range shown {
			location := "general"
			if c.FilePath != "" {
				location = c.FilePath
				if c.Line > 0 {
					location = fmt.Sprintf("%s:%d", c.FilePath, c.Line)
				}
			}
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", location, truncate(oneLine(c.Body), 200)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// BuildImplementPrompt assembles the agent prompt for implementing an
// approved plan. extra carries optional instructions added by the
// developer just before the run.
func BuildImplementPrompt(subject string, plan *Plan, extra string) string {
	var sb strings.Builder
	sb.WriteString(subject)
	if plan != nil && plan.Raw != "" {
		sb.WriteString("## Approved Plan\n")
		sb.WriteString(plan.Raw)
		sb.WriteString("\n\n")
	}
	if strings.TrimSpace(extra) != "" {
		sb.WriteString("## Additional Instructions\n")
		sb.WriteString(strings.TrimSpace(extra))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Implement the plan in this repository.")
	return sb.String()
}

func buildGeneratePrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(req.Subject)
	if req.Kind == KindReview {
		sb.WriteString("Write the review plan for this pull request.")
	} else {
		sb.WriteString("Write the implementation plan for this work item.")
	}
	return sb.String()
}

func buildRefinePrompt(req Request, current *Plan, feedback string) string {
	var sb strings.Builder
	sb.WriteString(req.Subject)
	sb.WriteString("## Current Plan\n")
	sb.WriteString(current.Raw)
	sb.WriteString("\n\n## Feedback\n")
	sb.WriteString(feedback)
	sb.WriteString("\n\nRevise the plan to address the feedback. Return the complete revised plan using the same sections.")
	return sb.String()
}

// systemPrompt combines the base prompt with repository guidance.
func systemPrompt(base, guidance string) string {
	if strings.TrimSpace(guidance) == "" {
		return base
	}
	return base + "\n\n" + guidance
}

// truncate shortens s to at most maxLen bytes, adding an ellipsis if
// truncated. The cut backs off to a rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen-3, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
