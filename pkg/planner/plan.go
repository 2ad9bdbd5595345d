package planner

import (
	"regexp"
	"strings"
)

// Plan is a parsed implementation or review plan.
type Plan struct {
	Summary  string `json:"summary"`
	Steps    string `json:"plan"`
	Raw      string `json:"raw"`
	Revision int    `json:"revision"`
}

var headingRe = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*:?\s*$|^\*\*([^*]+?):?\*\*\s*:?\s*$`)

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionPlan
	sectionOther
)

func classify(line string) (section, bool) {
	m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return sectionNone, false
	}
	title := strings.ToLower(strings.Trim(m[1]+m[2], "*: "))
	switch title {
	case "summary", "overview":
		return sectionSummary, true
	case "implementation plan", "plan", "review plan", "steps", "implementation steps":
		return sectionPlan, true
	}
	return sectionOther, true
}

// ParsePlan splits model output into a summary and a plan body. It looks
// for a Summary heading and an Implementation Plan (or Plan, Review Plan)
// heading. Without a Summary heading the first paragraph is the summary;
// without a plan heading everything after the summary is the plan.
func ParsePlan(text string) Plan {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	p := Plan{Raw: text}
	if text == "" {
		return p
	}

	var summary, plan, preamble, rest []string
	current := sectionNone
	sawSummary, sawPlan := false, false

	for _, line := range strings.Split(text, "\n") {
		if sec, ok := classify(line); ok {
			switch {
			case sec == sectionSummary && !sawSummary:
				sawSummary = true
				current = sec
				continue
			case sec == sectionPlan && !sawPlan:
				sawPlan = true
				current = sec
				continue
			case current == sectionSummary:
				current = sectionOther
			}
		}

		switch current {
		case sectionSummary:
			summary = append(summary, line)
		case sectionPlan:
			plan = append(plan, line)
		case sectionOther:
			rest = append(rest, line)
		default:
			preamble = append(preamble, line)
		}
	}

	switch {
	case sawSummary && sawPlan:
		p.Summary = join(summary)
		p.Steps = join(plan)
	case sawPlan:
		p.Summary = join(stripHeadings(preamble))
		p.Steps = join(plan)
	case sawSummary:
		p.Summary = join(summary)
		p.Steps = join(rest)
	default:
		p.Summary, p.Steps = splitFirstParagraph(text)
	}

	return p
}

func join(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func stripHeadings(lines []string) []string {
	out := lines[:0:0]
	for _, l := range lines {
		if _, ok := classify(l); ok {
			continue
		}
		out = append(out, l)
	}
	return out
}

func splitFirstParagraph(text string) (string, string) {
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return strings.TrimSpace(text[:i]), strings.TrimSpace(text[i+2:])
	}
	return text, ""
}
