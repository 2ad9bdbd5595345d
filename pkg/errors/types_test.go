package errors

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestADOError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ADOError
		expected string
	}{
		{
			name:     "resource and status",
			err:      &ADOError{Operation: "GetWorkItem", Resource: "123", StatusCode: 404, Message: "not found"},
			expected: "azure devops GetWorkItem for 123 failed (HTTP 404): not found",
		},
		{
			name:     "resource only",
			err:      &ADOError{Operation: "GetWorkItem", Resource: "123", Message: "decode failed"},
			expected: "azure devops GetWorkItem for 123 failed: decode failed",
		},
		{
			name:     "status only",
			err:      &ADOError{Operation: "ListThreads", StatusCode: 500, Message: "boom"},
			expected: "azure devops ListThreads failed (HTTP 500): boom",
		},
		{
			name:     "bare",
			err:      &ADOError{Operation: "CreatePullRequest", Message: "no repo"},
			expected: "azure devops CreatePullRequest failed: no repo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNewADOErrorWithStatus_Retryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := NewADOErrorWithStatus("GetWorkItem", "1", tt.status, "x")
			if err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.retryable)
			}
			if IsRetryable(errors.Wrap(err, "wrapped")) != tt.retryable {
				t.Errorf("IsRetryable(wrapped) = %v, want %v", !tt.retryable, tt.retryable)
			}
		})
	}
}

func TestGitError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GitError
		expected string
	}{
		{
			name:     "message wins",
			err:      &GitError{Operation: "push", Message: "rejected", Stderr: "remote: denied"},
			expected: "git push failed: rejected",
		},
		{
			name:     "stderr trimmed",
			err:      &GitError{Operation: "clone", Stderr: "fatal: repository not found\n"},
			expected: "git clone failed: fatal: repository not found",
		},
		{
			name:     "cause fallback",
			err:      &GitError{Operation: "diff", Cause: errors.New("exit status 128")},
			expected: "git diff failed: exit status 128",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGitError_NotRetryable(t *testing.T) {
	err := &GitError{Operation: "push", Message: "network unreachable"}
	if IsRetryable(err) {
		t.Error("git errors must not be retryable")
	}
}

func TestErrorsAsThroughWrap(t *testing.T) {
	base := NewAgentError("tool", "path escapes workspace")
	base.Tool = "read_file"
	wrapped := errors.Wrap(base, "implement")

	var target *AgentError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As() should find AgentError in wrapped chain")
	}
	if target.Tool != "read_file" {
		t.Errorf("Tool = %q, want %q", target.Tool, "read_file")
	}
	if got := target.Error(); got != "agent tool (read_file) failed: path escapes workspace" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWorkflowError_Unwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := NewWorkflowErrorWithCause("commit", "nothing to commit", sentinel)

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is() should find sentinel through Unwrap")
	}
	if err.Retryable {
		t.Error("plain cause should not be retryable")
	}
}

func TestIsHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"config", NewConfigError("ado.pat", "missing"), IsConfigError},
		{"ado", NewADOError("GetPullRequest", "x"), IsADOError},
		{"github", NewGitHubError("GetPR", "x"), IsGitHubError},
		{"git", NewGitError("clone", "x"), IsGitError},
		{"ai", NewAIError("anthropic", "Chat", "x"), IsAIError},
		{"agent", NewAgentError("stream", "x"), IsAgentError},
		{"workflow", NewWorkflowError("plan", "x"), IsWorkflowError},
		{"validation", NewValidationError("url", "x"), IsValidationError},
		{"conflict", NewConflictError("session", "x"), IsConflictError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(errors.Wrap(tt.err, "ctx")) {
				t.Errorf("helper did not match wrapped %T", tt.err)
			}
			if tt.check(errors.New("plain")) {
				t.Error("helper matched a plain error")
			}
		})
	}
}
