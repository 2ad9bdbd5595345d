package git

import (
	"strings"
	"testing"
)

func TestSanitizeBranchName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Add login page", "add-login-page"},
		{"punctuation runs", "Fix: crash -- on   save!!", "fix-crash-on-save"},
		{"leading and trailing", "  --Hello World--  ", "hello-world"},
		{"unicode dropped", "Café déjà vu", "caf-d-j-vu"},
		{"digits kept", "Upgrade to v2.3", "upgrade-to-v2-3"},
		{"empty", "", ""},
		{"only symbols", "!!!", ""},
		{"slashes", "feature/ABC/def", "feature-abc-def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeBranchName(tt.input); got != tt.want {
				t.Errorf("SanitizeBranchName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeBranchName_Cap(t *testing.T) {
	input := strings.Repeat("word ", 30)
	got := SanitizeBranchName(input)

	if len(got) > MaxBranchSlugLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxBranchSlugLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("SanitizeBranchName() = %q ends with hyphen", got)
	}
	if got != strings.ToLower(got) {
		t.Errorf("SanitizeBranchName() = %q is not lowercase", got)
	}
}

func TestSanitizeBranchName_CapLandsOnHyphen(t *testing.T) {
	// 49 letters then a separator: the cut at 50 hits the hyphen.
	input := strings.Repeat("a", 49) + " tail"
	got := SanitizeBranchName(input)

	if got != strings.Repeat("a", 49) {
		t.Errorf("SanitizeBranchName() = %q", got)
	}
}

func TestBranchNameForTicket(t *testing.T) {
	tests := []struct {
		id    int
		title string
		want  string
	}{
		{1234, "Add SSO login", "feature/1234-add-sso-login"},
		{7, "", "feature/7"},
		{7, "???", "feature/7"},
	}

	for _, tt := range tests {
		if got := BranchNameForTicket(tt.id, tt.title); got != tt.want {
			t.Errorf("BranchNameForTicket(%d, %q) = %q, want %q", tt.id, tt.title, got, tt.want)
		}
	}
}

func TestRepoNameFromURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://dev.azure.com/org/proj/_git/api", "api"},
		{"https://github.com/owner/repo.git", "repo"},
		{"git@github.com:owner/repo.git", "repo"},
		{"git@ssh.dev.azure.com:v3/org/proj/web", "web"},
		{"https://github.com/owner/repo/", "repo"},
		{"", "repo"},
	}

	for _, tt := range tests {
		if got := RepoNameFromURL(tt.input); got != tt.want {
			t.Errorf("RepoNameFromURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
