// Package errors provides typed errors for shipwright.
//
// Each subsystem (config, Azure DevOps, GitHub, git, AI, agent, workflow)
// has its own error type carrying structured fields. All types implement
// error and Unwrap so they work with errors.Is and errors.As from both the
// standard library and cockroachdb/errors.
package errors

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Field   string // Which config field has the issue
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
	}
	return "config error: " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with an underlying cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// ADOError represents Azure DevOps REST API errors.
type ADOError struct {
	Operation  string // e.g., "GetWorkItem", "CreatePullRequest"
	Resource   string // work item ID, PR ID, or repository name
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter time.Duration // server-provided delay from a Retry-After header
	Cause      error
}

// Error implements the error interface.
func (e *ADOError) Error() string {
	switch {
	case e.Resource != "" && e.StatusCode > 0:
		return fmt.Sprintf("azure devops %s for %s failed (HTTP %d): %s", e.Operation, e.Resource, e.StatusCode, e.Message)
	case e.Resource != "":
		return fmt.Sprintf("azure devops %s for %s failed: %s", e.Operation, e.Resource, e.Message)
	case e.StatusCode > 0:
		return fmt.Sprintf("azure devops %s failed (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("azure devops %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ADOError) Unwrap() error {
	return e.Cause
}

// NewADOError creates a new ADOError.
func NewADOError(operation, message string) *ADOError {
	return &ADOError{Operation: operation, Message: message}
}

// NewADOErrorWithStatus creates a new ADOError with an HTTP status code.
func NewADOErrorWithStatus(operation, resource string, statusCode int, message string) *ADOError {
	return &ADOError{
		Operation:  operation,
		Resource:   resource,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  isRetryableHTTPStatus(statusCode),
	}
}

// NewADOErrorWithCause creates a new ADOError with an underlying cause.
func NewADOErrorWithCause(operation, resource, message string, cause error) *ADOError {
	return &ADOError{
		Operation: operation,
		Resource:  resource,
		Message:   message,
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// GitHubError represents GitHub API errors.
type GitHubError struct {
	Operation  string // e.g., "CreatePR", "GetPR"
	StatusCode int    // HTTP status code if applicable
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *GitHubError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("github %s failed (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *GitHubError) Unwrap() error {
	return e.Cause
}

// NewGitHubError creates a new GitHubError.
func NewGitHubError(operation, message string) *GitHubError {
	return &GitHubError{Operation: operation, Message: message}
}

// NewGitHubErrorWithStatus creates a new GitHubError with HTTP status code.
func NewGitHubErrorWithStatus(operation string, statusCode int, message string) *GitHubError {
	return &GitHubError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  isRetryableHTTPStatus(statusCode),
	}
}

// NewGitHubErrorWithCause creates a new GitHubError with an underlying cause.
func NewGitHubErrorWithCause(operation, message string, cause error) *GitHubError {
	return &GitHubError{
		Operation: operation,
		Message:   message,
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// GitError represents a failed git subprocess or repository operation.
// Git failures are never retried.
type GitError struct {
	Operation string // e.g., "clone", "push"
	Args      []string
	Stderr    string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *GitError) Error() string {
	msg := e.Message
	if msg == "" && e.Stderr != "" {
		msg = strings.TrimSpace(e.Stderr)
	}
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("git %s failed: %s", e.Operation, msg)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *GitError) Unwrap() error {
	return e.Cause
}

// NewGitError creates a new GitError.
func NewGitError(operation, message string) *GitError {
	return &GitError{Operation: operation, Message: message}
}

// AIError represents AI provider errors.
type AIError struct {
	Provider   string // e.g., "anthropic", "groq"
	Operation  string // e.g., "Chat", "StreamChat"
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ai %s %s failed (HTTP %d): %s", e.Provider, e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ai %s %s failed: %s", e.Provider, e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// NewAIError creates a new AIError.
func NewAIError(provider, operation, message string) *AIError {
	return &AIError{Provider: provider, Operation: operation, Message: message}
}

// NewAIErrorWithStatus creates a new AIError with HTTP status code.
func NewAIErrorWithStatus(provider, operation string, statusCode int, message string) *AIError {
	return &AIError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  isRetryableHTTPStatus(statusCode),
	}
}

// NewAIErrorWithCause creates a new AIError with an underlying cause.
func NewAIErrorWithCause(provider, operation, message string, cause error) *AIError {
	return &AIError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// AgentError represents failures of the coding agent loop.
type AgentError struct {
	Phase   string // e.g., "stream", "tool", "timeout"
	Tool    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("agent %s (%s) failed: %s", e.Phase, e.Tool, e.Message)
	}
	return fmt.Sprintf("agent %s failed: %s", e.Phase, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewAgentError creates a new AgentError.
func NewAgentError(phase, message string) *AgentError {
	return &AgentError{Phase: phase, Message: message}
}

// WorkflowError represents a step of the ticket or review flow that was
// invoked out of order or failed.
type WorkflowError struct {
	Step      string // e.g., "plan", "implement", "commit", "create-pr"
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("workflow step %s failed: %s", e.Step, e.Message)
	}
	return "workflow error: " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// NewWorkflowError creates a new WorkflowError.
func NewWorkflowError(step, message string) *WorkflowError {
	return &WorkflowError{Step: step, Message: message}
}

// NewWorkflowErrorWithCause creates a new WorkflowError with an underlying cause.
func NewWorkflowErrorWithCause(step, message string, cause error) *WorkflowError {
	return &WorkflowError{
		Step:      step,
		Message:   message,
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// ValidationError reports bad caller input such as a malformed URL.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid input: " + e.Message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError reports that a resource is busy with another operation.
type ConflictError struct {
	Resource string
	Message  string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is busy: %s", e.Resource, e.Message)
}

// NewConflictError creates a new ConflictError.
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

// NotFoundError reports that a local resource (session state, instruction
// file, finding) does not exist.
type NotFoundError struct {
	Resource string
	Name     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, name string) *NotFoundError {
	return &NotFoundError{Resource: resource, Name: name}
}

// IsRetryable checks if an error or any error in its chain is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var adoErr *ADOError
	if errors.As(err, &adoErr) {
		return adoErr.Retryable
	}

	var ghErr *GitHubError
	if errors.As(err, &ghErr) {
		return ghErr.Retryable
	}

	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}

	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Retryable
	}

	return false
}

// IsConfigError checks if an error or any error in its chain is a ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsADOError checks if an error or any error in its chain is an ADOError.
func IsADOError(err error) bool {
	var adoErr *ADOError
	return errors.As(err, &adoErr)
}

// IsGitHubError checks if an error or any error in its chain is a GitHubError.
func IsGitHubError(err error) bool {
	var ghErr *GitHubError
	return errors.As(err, &ghErr)
}

// IsGitError checks if an error or any error in its chain is a GitError.
func IsGitError(err error) bool {
	var gitErr *GitError
	return errors.As(err, &gitErr)
}

// IsAIError checks if an error or any error in its chain is an AIError.
func IsAIError(err error) bool {
	var aiErr *AIError
	return errors.As(err, &aiErr)
}

// IsAgentError checks if an error or any error in its chain is an AgentError.
func IsAgentError(err error) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr)
}

// IsWorkflowError checks if an error or any error in its chain is a WorkflowError.
func IsWorkflowError(err error) bool {
	var wfErr *WorkflowError
	return errors.As(err, &wfErr)
}

// IsValidationError checks if an error or any error in its chain is a ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// IsConflictError checks if an error or any error in its chain is a ConflictError.
func IsConflictError(err error) bool {
	var cErr *ConflictError
	return errors.As(err, &cErr)
}

// IsNotFoundError checks if an error or any error in its chain is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// isRetryableHTTPStatus returns true for HTTP status codes that are typically retryable.
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// Re-export commonly used functions from cockroachdb/errors so callers
// only need one errors import.
var (
	// New creates a new error with the given message.
	New = errors.New

	// Newf creates a new error with formatted message.
	Newf = errors.Newf

	// Wrap wraps an error with additional context.
	Wrap = errors.Wrap

	// Wrapf wraps an error with formatted additional context.
	Wrapf = errors.Wrapf

	// Is reports whether any error in err's chain matches target.
	Is = errors.Is

	// As finds the first error in err's chain that matches target.
	As = errors.As

	// Cause returns the root cause of an error.
	Cause = errors.Cause
)
