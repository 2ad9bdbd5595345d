package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/planner"
	"thoreinstein.com/shipwright/pkg/session"
)

var (
	planWorkspace string
	planOutput    string
	planSession   string
)

// planCmd drafts an implementation plan for a work item.
var planCmd = &cobra.Command{
	Use:   "plan <work-item-url>",
	Short: "Draft an implementation plan for a work item",
	Long: `Fetch a work item and stream an implementation plan from the configured
AI provider.

Instructions and skills found in --workspace (and the shared instructions
checkout) are included as guidance. The plan is saved to the ticket
session named by --session, so 'shipwright serve' with the sqlite session
store can pick it up.

Examples:
  shipwright plan https://dev.azure.com/acme/Payments/_workitems/edit/1234
  shipwright plan --workspace ~/src/payments --output plan.md <url>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, args[0])
	},
}

func init() {
	planCmd.Flags().StringVarP(&planWorkspace, "workspace", "w", "", "repository whose instructions guide the plan")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "also write the plan to this file")
	planCmd.Flags().StringVar(&planSession, "session", session.DefaultID, "session to save the plan in")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, newCredentialStore())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.planner == nil {
		return shiperrors.NewConfigError("ai.provider", "no AI provider is configured for planning")
	}

	ctx := a.logger.WithContext(cmd.Context())
	wi, err := fetchWorkItem(cmd, a, url)
	if err != nil {
		return err
	}

	guidance, err := a.library.Render(planWorkspace)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	heading(out, "Plan for "+workItemLabel(wi.ID)+" "+wi.Title)
	fmt.Fprintln(out)

	plan, err := a.planner.Generate(ctx, planner.Request{
		Kind:     planner.KindTicket,
		Subject:  planner.TicketSubject(wi),
		Guidance: guidance,
	}, streamTo(out))
	if err != nil {
		return err
	}
	fmt.Fprintln(out)

	if _, err := a.sessions.Update(ctx, session.ModeTicket, planSession, func(s *session.Session) error {
		if s.Ticket == nil || s.Ticket.ID != wi.ID {
			s.SetDiscussion(nil)
			s.Transcript = ""
			s.LastCommit = ""
			s.CreatedPR = nil
			s.Steps = nil
		}
		s.Ticket = wi
		s.MarkStep("fetch")
		s.SetPlan(plan)
		s.MarkStep("plan")
		return nil
	}); err != nil {
		return err
	}

	if planOutput != "" {
		if err := os.WriteFile(planOutput, []byte(plan.Raw), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", planOutput)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), labelStyle.Render("Plan written to "+planOutput))
	}
	return nil
}

// streamTo returns an onDelta callback that prints text as it arrives.
func streamTo(w io.Writer) func(string) {
	return func(text string) {
		fmt.Fprint(w, text)
	}
}
