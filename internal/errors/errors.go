// Package errors defines application errors with user-facing messages and the helpers that report
// and retry them.
package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes.
const (
	CodeValidation = "E100"
	CodeStorage    = "E200"
	CodeVault      = "E300"
	CodeBusy       = "E400"
	CodeRateLimit  = "E500"
)

const defaultUserMessage = "The teller is temporarily unavailable. Please try again later."

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// NewValidationError reports malformed input such as an unknown key label.
func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewStorageError reports a failure of the session store.
func NewStorageError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeStorage,
		Message:     fmt.Sprintf("Session storage error: %s", underlyingMsg),
		UserMessage: defaultUserMessage,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewVaultError reports a failure to read or update the cash vault.
func NewVaultError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeVault,
		Message:     fmt.Sprintf("Cash vault error: %s", underlyingMsg),
		UserMessage: "Cash cannot be dispensed right now. Your card has not been charged.",
		Severity:    SeverityCritical,
		Retryable:   false,
		cause:       cause,
	}
}

// NewBusyError reports that another request currently owns the terminal.
func NewBusyError(terminalID string, cause error) *AppError {
	return &AppError{
		Code:        CodeBusy,
		Message:     fmt.Sprintf("Terminal %s is busy", terminalID),
		UserMessage: "The terminal is busy. Please try again.",
		Severity:    SeverityLow,
		Retryable:   true,
		cause:       cause,
	}
}

// NewRateLimitError reports that a terminal sent too many inputs.
func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many key presses. Try again in %d seconds.", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}
