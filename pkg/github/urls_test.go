package github

import "testing"

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "ssh", url: "git@github.com:owner/repo.git", wantOwner: "owner", wantRepo: "repo"},
		{name: "ssh without .git suffix", url: "git@github.com:owner/repo", wantOwner: "owner", wantRepo: "repo"},
		{name: "ssh scheme", url: "ssh://git@github.com/owner/repo.git", wantOwner: "owner", wantRepo: "repo"},
		{name: "https", url: "https://github.com/owner/repo", wantOwner: "owner", wantRepo: "repo"},
		{name: "https .git", url: "https://github.com/owner/repo.git", wantOwner: "owner", wantRepo: "repo"},
		{name: "https with user", url: "https://x-access-token@github.com/owner/repo.git", wantOwner: "owner", wantRepo: "repo"},
		{name: "missing repo", url: "git@github.com:owner", wantErr: true},
		{name: "azure devops", url: "https://dev.azure.com/o/p/_git/r", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRepoURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepoURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Organization != tt.wantOwner || got.Repository != tt.wantRepo {
				t.Errorf("ParseRepoURL() = %+v, want %s/%s", got, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestParsePullRequestURL(t *testing.T) {
	tests := []struct {
		url     string
		wantID  int
		wantErr bool
	}{
		{url: "https://github.com/acme/widgets/pull/42", wantID: 42},
		{url: "https://github.com/acme/widgets/pull/42/files", wantID: 42},
		{url: "https://github.com/acme/widgets/issues/42", wantErr: true},
		{url: "https://github.com/acme/widgets/pull/0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ParsePullRequestURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePullRequestURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.ID != tt.wantID {
				t.Errorf("ID = %d, want %d", got.ID, tt.wantID)
			}
		})
	}
}
