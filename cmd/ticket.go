package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"thoreinstein.com/shipwright/pkg/ado"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/git"
)

var ticketJSON bool

// ticketCmd shows an Azure DevOps work item.
var ticketCmd = &cobra.Command{
	Use:   "ticket <work-item-url>",
	Short: "Show an Azure DevOps work item",
	Long: `Fetch a work item and show its title, state, description and
acceptance criteria, together with the branch name shipwright would use
to implement it.

Examples:
  shipwright ticket https://dev.azure.com/acme/Payments/_workitems/edit/1234
  shipwright ticket --json https://acme.visualstudio.com/Payments/_workitems/edit/1234`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTicket(cmd, args[0])
	},
}

func init() {
	ticketCmd.Flags().BoolVar(&ticketJSON, "json", false, "print the work item as JSON")
	rootCmd.AddCommand(ticketCmd)
}

// fetchWorkItem resolves url and fetches the work item it names.
func fetchWorkItem(cmd *cobra.Command, a *app, url string) (*ado.WorkItem, error) {
	ref, err := ado.ParseWorkItemURL(strings.TrimSpace(url))
	if err != nil {
		return nil, err
	}
	if a.ado == nil {
		return nil, shiperrors.NewConfigError("ado.pat", "Azure DevOps PAT is required (set ADO_PAT or run 'shipwright auth login')")
	}
	return a.ado.GetWorkItem(cmd.Context(), ref)
}

func runTicket(cmd *cobra.Command, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, newCredentialStore())
	if err != nil {
		return err
	}
	defer a.Close()

	wi, err := fetchWorkItem(cmd, a, url)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ticketJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(wi)
	}
	printWorkItem(out, wi)
	return nil
}

func printWorkItem(w io.Writer, wi *ado.WorkItem) {
	heading(w, fmt.Sprintf("#%d %s", wi.ID, wi.Title))
	field(w, "Type", wi.Type)
	field(w, "State", fmt.Sprintf("%s (%s)", wi.State, wi.Phase))
	field(w, "Assigned to", wi.AssignedTo)
	field(w, "Tags", strings.Join(wi.Tags, ", "))
	field(w, "Figma", wi.FigmaURL)
	field(w, "Branch", git.BranchNameForTicket(wi.ID, wi.Title))
	field(w, "URL", wi.URL)

	var md strings.Builder
	if wi.Description != "" {
		md.WriteString("## Description\n\n" + wi.Description + "\n\n")
	}
	if wi.AcceptanceCriteria != "" {
		md.WriteString("## Acceptance Criteria\n\n" + wi.AcceptanceCriteria + "\n")
	}
	if md.Len() > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, renderMarkdown(w, md.String()))
	}
}

// workItemLabel is "#<id>" for log and status lines.
func workItemLabel(id int) string {
	return "#" + strconv.Itoa(id)
}
