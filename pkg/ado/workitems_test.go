package ado

import "testing"

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "just text", "just text"},
		{"entities", "a &amp; b &lt;c&gt;&nbsp;d", "a & b <c> d"},
		{"paragraphs", "<p>one</p><p>two</p>", "one\ntwo"},
		{"br", "line1<br/>line2<BR>line3", "line1\nline2\nline3"},
		{"inline tags collapse", "<span>hello</span>   <b>world</b>", "hello world"},
		{"list", "<ul><li>a</li><li>b</li></ul>", "a\nb"},
		{"blank lines capped", "<div>a</div><div></div><div></div><div></div><div>b</div>", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindFigmaURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"none", "no links here", ""},
		{"design", `see https://www.figma.com/design/Xy12_-ab/Screen?node-id=1 for details`, "https://www.figma.com/design/Xy12_-ab/Screen?node-id=1"},
		{"file in anchor", `<a href="https://figma.com/file/ABC/Name">x</a>`, "https://figma.com/file/ABC/Name"},
		{"proto", "(https://www.figma.com/proto/P1)", "https://www.figma.com/proto/P1"},
		{"escaped ampersand", `https://www.figma.com/design/K/N?a=1&amp;b=2`, "https://www.figma.com/design/K/N?a=1&b=2"},
		{"other site", "https://example.com/design/abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindFigmaURL(tt.in); got != tt.want {
				t.Errorf("FindFigmaURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapStateToPhase(t *testing.T) {
	tests := []struct {
		state string
		want  WorkflowPhase
	}{
		{"New", PhaseNotStarted},
		{"To Do", PhaseNotStarted},
		{"Proposed", PhaseNotStarted},
		{"Active", PhaseInProgress},
		{"Committed", PhaseInProgress},
		{"Doing", PhaseInProgress},
		{"  in progress ", PhaseInProgress},
		{"Resolved", PhaseInReview},
		{"In Review", PhaseInReview},
		{"Closed", PhaseDone},
		{"Done", PhaseDone},
		{"Removed", PhaseDone},
		{"Ready for QA", PhaseInReview},
		{"Dev Complete", PhaseInProgress},
		{"Something Else", PhaseNotStarted},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			if got := MapStateToPhase(tt.state); got != tt.want {
				t.Errorf("MapStateToPhase(%q) = %q, want %q", tt.state, got, tt.want)
			}
		})
	}
}
