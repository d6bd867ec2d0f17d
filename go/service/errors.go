package service

import (
	"regexp"
	"strings"
)

// Error codes carried by Error.
const (
	CodeNotInitialized     = "NOT_INITIALIZED"
	CodeAlreadyInitialized = "ALREADY_INITIALIZED"
	CodeConfig             = "CONFIG"
	CodeInternal           = "INTERNAL"
)

// Error is the unclassified service-boundary error. Its message is
// safe to show users.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// sanitizedMessage replaces anything that smells like an internal
// detail. Shown to users instead of the raw error.
const sanitizedMessage = "Service temporarily unavailable"

var sensitiveSubstrings = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"apikey",
	"authorization",
	"postgresql://",
	"postgres://",
	"redis://",
	"mysql://",
}

var hostPortPattern = regexp.MustCompile(`\b[\w.-]+:\d{2,5}\b`)

// Sanitize scrubs an error message before it can reach a user: any
// sensitive substring or host:port pattern collapses the whole message
// to a generic one.
func Sanitize(message string) string {
	var lowered = strings.ToLower(message)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lowered, s) {
			return sanitizedMessage
		}
	}
	if hostPortPattern.MatchString(message) {
		return sanitizedMessage
	}
	return message
}

// WrapInternal converts an unclassified error into a user-safe Error,
// sanitizing its message.
func WrapInternal(err error) *Error {
	return &Error{Code: CodeInternal, Message: Sanitize(err.Error()), Err: err}
}
