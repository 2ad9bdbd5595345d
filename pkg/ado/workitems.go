package ado

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// WorkItem is a ticket fetched from Azure Boards.
type WorkItem struct {
	ID                 int           `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description"`
	AcceptanceCriteria string        `json:"acceptanceCriteria,omitempty"`
	Type               string        `json:"type"`
	State              string        `json:"state"`
	Phase              WorkflowPhase `json:"phase"`
	AssignedTo         string        `json:"assignedTo,omitempty"`
	Tags               []string      `json:"tags,omitempty"`
	URL                string        `json:"url"`
	FigmaURL           string        `json:"figmaUrl,omitempty"`
	Organization       string        `json:"organization"`
	Project            string        `json:"project"`
}

type workItemResponse struct {
	ID     int                        `json:"id"`
	Fields map[string]json.RawMessage `json:"fields"`
	Links  struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

// GetWorkItem fetches a work item by reference.
func (c *Client) GetWorkItem(ctx context.Context, ref WorkItemRef) (*WorkItem, error) {
	var resp workItemResponse
	err := c.do(ctx, request{
		operation: "GetWorkItem",
		resource:  strconv.Itoa(ref.ID),
		method:    http.MethodGet,
		url:       c.projectURL(ref.Organization, ref.Project, "wit/workitems/"+strconv.Itoa(ref.ID), nil),
	}, &resp)
	if err != nil {
		return nil, err
	}

	rawDescription := stringField(resp.Fields, "System.Description")

	item := &WorkItem{
		ID:                 resp.ID,
		Title:              stringField(resp.Fields, "System.Title"),
		Description:        StripHTML(rawDescription),
		AcceptanceCriteria: StripHTML(stringField(resp.Fields, "Microsoft.VSTS.Common.AcceptanceCriteria")),
		Type:               stringField(resp.Fields, "System.WorkItemType"),
		State:              stringField(resp.Fields, "System.State"),
		AssignedTo:         identityField(resp.Fields, "System.AssignedTo"),
		Tags:               splitTags(stringField(resp.Fields, "System.Tags")),
		URL:                resp.Links.HTML.Href,
		FigmaURL:           FindFigmaURL(rawDescription),
		Organization:       ref.Organization,
		Project:            ref.Project,
	}
	if item.ID == 0 {
		item.ID = ref.ID
	}
	if item.URL == "" {
		item.URL = WorkItemURL(ref)
	}
	item.Phase = MapStateToPhase(item.State)

	c.logDebug("fetched work item", "id", item.ID, "title", item.Title, "state", item.State)

	return item, nil
}

type patchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// UpdateWorkItemState sets System.State on a work item.
func (c *Client) UpdateWorkItemState(ctx context.Context, ref WorkItemRef, state string) error {
	return c.do(ctx, request{
		operation:   "UpdateWorkItemState",
		resource:    strconv.Itoa(ref.ID),
		method:      http.MethodPatch,
		url:         c.projectURL(ref.Organization, ref.Project, "wit/workitems/"+strconv.Itoa(ref.ID), nil),
		body:        []patchOperation{{Op: "add", Path: "/fields/System.State", Value: state}},
		contentType: "application/json-patch+json",
	}, nil)
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// identityField reads an identity reference, which older APIs return as
// a plain string and newer ones as an object.
func identityField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var identity struct {
		DisplayName string `json:"displayName"`
		UniqueName  string `json:"uniqueName"`
	}
	if err := json.Unmarshal(raw, &identity); err == nil {
		if identity.DisplayName != "" {
			return identity.DisplayName
		}
		return identity.UniqueName
	}
	return ""
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ";") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

var (
	blockBreakRe  = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/li|/h[1-6]|/tr)\s*>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	spaceRunRe    = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	figmaURLRegex = regexp.MustCompile(`https?://(?:www\.)?figma\.com/(?:file|design|proto)/[a-zA-Z0-9\-_]+(?:/[^\s"'<>)\}\]]*)?`)
)

// StripHTML converts a work item rich-text field into plain text. Block
// level closing tags become line breaks, other tags are dropped, entities
// are decoded and runs of whitespace are collapsed.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = blockBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// FindFigmaURL returns the first Figma file, design or prototype link in s.
func FindFigmaURL(s string) string {
	return figmaURLRegex.FindString(html.UnescapeString(s))
}
