package cluster

import (
	"fmt"
	"strings"
)

// Error codes for categorization.
const (
	ErrCodeConfigNotFound       = "CONFIG_NOT_FOUND"
	ErrCodeConfigParse          = "CONFIG_PARSE"
	ErrCodeConfigInvalid        = "CONFIG_INVALID"
	ErrCodeSectionMissing       = "SECTION_MISSING"
	ErrCodeHostUnknown          = "HOST_UNKNOWN"
	ErrCodeTemplateInvalid      = "TEMPLATE_INVALID"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
)

// UserError is an error meant to be read by the operator, with an
// actionable suggestion.
type UserError struct {
	Code       string // Error code for categorization (e.g., "CONFIG_NOT_FOUND")
	Message    string // User-friendly error message
	Context    string // File path, field or host the error is about
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the message and, when set, its context.
func (e *UserError) Error() string {
	if e.Context == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, e.Context)
}

// Unwrap returns the underlying error for error chain support.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is matches another UserError with the same code.
func (e *UserError) Is(target error) bool {
	if t, ok := target.(*UserError); ok {
		return e.Code == t.Code
	}
	return false
}

// Format returns the error with its code, location, cause and suggestion on
// separate lines.
func (e *UserError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, "\n  Location: %s", e.Context)
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, "\n  Cause: %v", e.Underlying)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}

	return b.String()
}

// NewUserError creates a new UserError with the given code and message.
func NewUserError(code, message string) *UserError {
	return &UserError{Code: code, Message: message}
}

// WithContext returns a copy with context set.
func (e *UserError) WithContext(ctx string) *UserError {
	c := *e
	c.Context = ctx
	return &c
}

// WithSuggestion returns a copy with suggestion set.
func (e *UserError) WithSuggestion(suggestion string) *UserError {
	c := *e
	c.Suggestion = suggestion
	return &c
}

// WithUnderlying returns a copy wrapping err.
func (e *UserError) WithUnderlying(err error) *UserError {
	c := *e
	c.Underlying = err
	return &c
}

// NewConfigNotFoundError creates an error for a missing cluster file.
func NewConfigNotFoundError(path string) *UserError {
	return &UserError{
		Code:       ErrCodeConfigNotFound,
		Message:    fmt.Sprintf("cluster file not found: %s", path),
		Context:    path,
		Suggestion: "Pass --config with the path to a clusterprep.yaml or clusterprep.toml file.",
	}
}

// NewConfigParseError creates an error for YAML or TOML syntax errors.
func NewConfigParseError(path string, format Format, err error) *UserError {
	return &UserError{
		Code:       ErrCodeConfigParse,
		Message:    fmt.Sprintf("failed to parse %s cluster file", format),
		Context:    path,
		Suggestion: "Check the file syntax. Property blocks are mappings in YAML and arrays of {name, value} tables in TOML.",
		Underlying: err,
	}
}

// NewConfigInvalidError creates an error for a file that parses but does
// not validate.
func NewConfigInvalidError(path string, err error) *UserError {
	return &UserError{
		Code:       ErrCodeConfigInvalid,
		Message:    "invalid cluster configuration",
		Context:    path,
		Suggestion: "Fix the fields listed above; see 'clusterprep config show' for the effective values.",
		Underlying: err,
	}
}

// NewSectionMissingError creates an error for a command whose section is
// absent from the cluster file.
func NewSectionMissingError(section string) *UserError {
	return &UserError{
		Code:       ErrCodeSectionMissing,
		Message:    fmt.Sprintf("the cluster file has no %q section", section),
		Context:    section,
		Suggestion: fmt.Sprintf("Add a %q section to the cluster file.", section),
	}
}

// NewHostUnknownError creates an error for a selector naming no known host.
func NewHostUnknownError(selector string, available []string) *UserError {
	suggestion := "Check the hosts section of the cluster file."
	if len(available) > 0 {
		suggestion = fmt.Sprintf("Available hosts: %s", strings.Join(available, ", "))
	}
	return &UserError{
		Code:       ErrCodeHostUnknown,
		Message:    fmt.Sprintf("no host matches %q", selector),
		Suggestion: suggestion,
	}
}

// NewTemplateError creates an error for a command template that does not
// parse or render.
func NewTemplateError(name string, err error) *UserError {
	return &UserError{
		Code:       ErrCodeTemplateInvalid,
		Message:    "command template failed",
		Context:    name,
		Suggestion: "Template fields are written {{.Field}}; check the field names against the documented data.",
		Underlying: err,
	}
}

// NewConfirmationRequiredError creates an error for a destructive command
// run without confirmation.
func NewConfirmationRequiredError(action string) *UserError {
	return &UserError{
		Code:       ErrCodeConfirmationRequired,
		Message:    fmt.Sprintf("%s is destructive and was not confirmed", action),
		Suggestion: "Re-run with --yes, or answer 'y' at the prompt.",
	}
}
