package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// ExitCode represents an rwlock CLI exit code
type ExitCode int

const (
	// ExitSuccess is the success exit code
	ExitSuccess ExitCode = 0

	// Usage errors (2-9)
	ExitUsage ExitCode = 2

	// Lock errors (40-49)
	ExitLockTimeout ExitCode = 40
	ExitLockHeld    ExitCode = 41
	ExitGuardFailed ExitCode = 42

	// Child process errors (50-59)
	ExitChildFailed ExitCode = 50
)

// CLIError represents an rwlock-specific error with an exit code and hint
type CLIError struct {
	Code    ExitCode
	Message string
	Hint    string
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s\nHint: %s", e.Message, e.Hint)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// JSONError represents the JSON format for errors
type JSONError struct {
	Error string   `json:"error"`
	Code  ExitCode `json:"code"`
	Hint  string   `json:"hint,omitempty"`
}

// ToJSON returns the JSON representation of the error
func (e *CLIError) ToJSON() string {
	je := JSONError{
		Error: e.Message,
		Code:  e.Code,
		Hint:  e.Hint,
	}
	data, _ := json.MarshalIndent(je, "", "  ")
	return string(data)
}

// New creates a new CLI error
func New(code ExitCode, message string, hint string, cause error) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   cause,
	}
}

// Handle handles an error by printing it and exiting with the appropriate code
func Handle(err error, useJSON bool) {
	if err == nil {
		return
	}

	if cliErr, ok := err.(*CLIError); ok {
		if useJSON {
			fmt.Fprintln(os.Stderr, cliErr.ToJSON())
		} else {
			fmt.Fprintln(os.Stderr, cliErr.Error())
		}
		os.Exit(int(cliErr.Code))
	}

	// Generic error
	if useJSON {
		je := JSONError{
			Error: err.Error(),
			Code:  1,
		}
		data, _ := json.MarshalIndent(je, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// Predefined error constructors for common cases

// LockTimeout creates a LOCK_TIMEOUT error
func LockTimeout(path string, cause error) *CLIError {
	return New(
		ExitLockTimeout,
		fmt.Sprintf("Timeout waiting for lock: %s", path),
		"Another process is holding the lock. Wait for it to finish, or run 'rwlock status' to see the holders.",
		cause,
	)
}

// LockHeld creates a LOCK_HELD error
func LockHeld(path string, holder string) *CLIError {
	return New(
		ExitLockHeld,
		fmt.Sprintf("Lock is held: %s (%s)", path, holder),
		"Run 'rwlock status' to see the holders, or 'rwlock unlock --force' to clear them.",
		nil,
	)
}

// GuardFailed creates a GUARD_FAILED error
func GuardFailed(path string, cause error) *CLIError {
	return New(
		ExitGuardFailed,
		fmt.Sprintf("Could not serialize access to lock record: %s", path),
		"Check that the lock directory is writable and supports advisory file locks.",
		cause,
	)
}

// ChildFailed creates a CHILD_FAILED error for a child command that could not
// be started
func ChildFailed(command string, cause error) *CLIError {
	return New(
		ExitChildFailed,
		fmt.Sprintf("Failed to run command: %s", command),
		"Make sure the command exists and is in your PATH.",
		cause,
	)
}

// Usage creates a usage error
func Usage(message string) *CLIError {
	return New(ExitUsage, message, "", nil)
}
