package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"thoreinstein.com/shipwright/pkg/agent"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/hosting"
	"thoreinstein.com/shipwright/pkg/review"
	"thoreinstein.com/shipwright/pkg/session"
	"thoreinstein.com/shipwright/pkg/sse"
)

var (
	reviewPath     string
	reviewPost     bool
	reviewFindings []string
	reviewSession  string
)

// reviewCmd reviews a pull request in a local checkout.
var reviewCmd = &cobra.Command{
	Use:   "review <pull-request-url>",
	Short: "Review a pull request with the coding agent",
	Long: `Fetch a pull request, diff its source branch in a local checkout against
the target branch and let a read-only agent review the change.

Findings are printed with their ids. Pass --post to publish every finding
as a pull request comment, or --finding to publish selected ones.

Examples:
  shipwright review https://github.com/acme/app/pull/42
  shipwright review --path ~/src/app --post https://dev.azure.com/acme/Payments/_git/app/pullrequest/7
  shipwright review --finding F1 --finding F3 <url>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, args[0])
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewPath, "path", ".", "local checkout of the repository")
	reviewCmd.Flags().BoolVar(&reviewPost, "post", false, "post every finding as a comment")
	reviewCmd.Flags().StringSliceVar(&reviewFindings, "finding", nil, "post only these finding ids (repeatable)")
	reviewCmd.Flags().StringVar(&reviewSession, "session", session.DefaultID, "session to save the findings in")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, newCredentialStore())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.agent == nil {
		return shiperrors.NewConfigError("agent.api_key", "ANTHROPIC_API_KEY is required to run the coding agent")
	}

	ctx := a.logger.WithContext(cmd.Context())
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	provider, ref, err := a.hosts.ResolvePullRequest(strings.TrimSpace(url))
	if err != nil {
		return err
	}
	pr, err := provider.GetPullRequest(ctx, ref)
	if err != nil {
		return err
	}
	heading(out, fmt.Sprintf("PR %d: %s", pr.ID, pr.Title))
	field(out, "Branches", pr.SourceBranch+" → "+pr.TargetBranch)

	ws, err := a.workspaces.UseLocal(reviewPath)
	if err != nil {
		return err
	}
	if ws.Branch != pr.SourceBranch {
		fmt.Fprintln(errOut, warnStyle.Render(fmt.Sprintf("Warning: %s is on %s, not the pull request branch %s", ws.Path, ws.Branch, pr.SourceBranch)))
	}

	raw, err := a.workspaces.DiffAgainst(ctx, ws.Path, pr.TargetBranch)
	if err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return shiperrors.NewWorkflowError("review", "the source branch has no changes against "+pr.TargetBranch)
	}

	guidance, err := a.library.Render(ws.Path)
	if err != nil {
		return err
	}

	run := a.agent.Start(ctx, agent.Task{
		Workspace:    ws.Path,
		SystemPrompt: strings.TrimSpace(review.SystemPrompt + "\n\n" + guidance),
		Prompt:       review.BuildReviewPrompt(pr, "", raw),
		ReadOnly:     true,
	})
	transcript := follow(run, errOut)
	result, err := run.Wait()
	if err != nil {
		return err
	}

	findings := review.ParseFindings(result.Summary)
	if _, err := a.sessions.Update(ctx, session.ModeReview, reviewSession, func(s *session.Session) error {
		s.PullRequest = pr
		s.Workspace = ws
		s.Findings = findings
		s.Transcript = transcript.String()
		s.MarkStep("fetch")
		s.MarkStep("workspace")
		s.MarkStep("review")
		return nil
	}); err != nil {
		return err
	}

	fmt.Fprintln(out)
	printFindings(out, findings)

	toPost := findings
	switch {
	case len(reviewFindings) > 0:
		var unknown []string
		toPost, unknown = review.Select(findings, reviewFindings)
		if len(unknown) > 0 {
			return shiperrors.NewNotFoundError("finding", strings.Join(unknown, ", "))
		}
	case !reviewPost:
		return nil
	}
	return postFindings(ctx, out, provider, ref, toPost)
}

// follow prints agent progress to w until the run ends and returns the
// accumulated transcript.
func follow(run *agent.Session, w io.Writer) *sse.Accumulator {
	acc := &sse.Accumulator{}
	for ev := range run.Events() {
		switch ev.Type {
		case agent.EventStatus:
			acc.Status(ev.Text)
			fmt.Fprintln(w, labelStyle.Render(ev.Text))
		case agent.EventDelta:
			acc.Delta(ev.Text)
		case agent.EventTool:
			acc.Tool(ev.Tool, ev.Phase, ev.Detail)
			if ev.Phase == agent.PhaseStart {
				fmt.Fprintln(w, labelStyle.Render("  "+strings.TrimSpace(ev.Tool+" "+ev.Detail)))
			}
		}
	}
	return acc
}

func printFindings(w io.Writer, findings []review.Finding) {
	if len(findings) == 0 {
		fmt.Fprintln(w, okStyle.Render("No findings."))
		return
	}
	heading(w, fmt.Sprintf("%d finding(s)", len(findings)))
	for _, f := range findings {
		loc := f.FilePath
		if loc != "" && f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, f.Line)
		}
		fmt.Fprintf(w, "\n%s %s %s\n", labelStyle.Render(f.ID), severityLabel(string(f.Severity)), f.Title)
		field(w, "  at", loc)
		if f.Description != "" {
			fmt.Fprint(w, renderMarkdown(w, f.Description+"\n"))
		}
	}
}

// postFindings publishes each finding as a comment. It keeps going after
// a failure and reports the first error once every finding was tried.
func postFindings(ctx context.Context, w io.Writer, provider hosting.Provider, ref hosting.PullRequestRef, findings []review.Finding) error {
	var firstErr error
	posted := 0
	for _, f := range findings {
		if err := provider.PostComment(ctx, ref, review.ToComment(f)); err != nil {
			fmt.Fprintf(w, "%s %s: %s\n", errStyle.Render("failed"), f.ID, shiperrors.FormatUserError(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		posted++
		fmt.Fprintf(w, "%s %s\n", okStyle.Render("posted"), f.ID)
	}
	if posted == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}
