// Package errors provides structured error handling for reelsheet.
// It implements errors with codes, context, and stack traces so callers
// can distinguish configuration, validation, and permission failures.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Configuration errors (1xx): fixable locally, raised before any
	// external call.
	CodeConfig            Code = "E101"
	CodeCredentialMissing Code = "E102"

	// Pipeline errors (2xx)
	CodeAcquisitionFailed Code = "E201"
	CodeExtractionEmpty   Code = "E202"
	CodeEnrichmentFailed  Code = "E203"
	CodeNoDestination     Code = "E204"

	// Store errors (3xx)
	CodeStoreWrite       Code = "E301"
	CodePermissionDenied Code = "E302"
	CodeBackupWrite      Code = "E303"
	CodeStoreRead        Code = "E304"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all reelsheet errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// --- Convenience constructors ---

// MissingSetting creates a configuration error naming the setting and the
// environment variable that provides it.
func MissingSetting(setting, envVar string) *Error {
	return New(CodeConfig, fmt.Sprintf("%s not configured", setting)).
		WithContext("env", envVar)
}

// CredentialNotFound creates an error for an absent credential file with
// the remediation a user needs.
func CredentialNotFound(path string) *Error {
	return New(CodeCredentialMissing, fmt.Sprintf(
		"service account JSON not found: %s\n"+
			"Expected path in Docker: /secrets/google-sa.json\n"+
			"Make sure your environment has GOOGLE_SA_JSON_PATH set\n"+
			"and the file exists in your mounted secrets folder", path)).
		WithContext("path", path)
}

// PermissionDenied creates an access-denied error carrying the service
// account identity and the exact sharing steps.
func PermissionDenied(serviceAccountEmail, sheetID string, cause error) *Error {
	return Wrap(cause, CodePermissionDenied, fmt.Sprintf(
		"permission denied: service account %q does not have write access to the sheet\n"+
			"To fix this:\n"+
			"1. Open your Google Sheet: https://docs.google.com/spreadsheets/d/%s\n"+
			"2. Click 'Share' (top right)\n"+
			"3. Add this email as Editor: %s\n"+
			"4. Retry the operation", serviceAccountEmail, sheetID, serviceAccountEmail)).
		WithContext("service_account", serviceAccountEmail)
}

// NoItems creates the validation error for an extraction that produced
// nothing.
func NoItems(postURL string) *Error {
	return New(CodeExtractionEmpty, "no items extracted from post").
		WithContext("url", postURL)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *Error {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsConfig reports whether the failure is fixable through local
// configuration rather than upstream permissions or retries.
func IsConfig(err error) bool {
	code := GetCode(err)
	return code == CodeConfig || code == CodeCredentialMissing
}

// UserMessage renders an error for an end-user surface (bot reply, API
// response), truncating anything longer than max bytes.
func UserMessage(err error, max int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
		if e.Cause != nil {
			msg += ": " + e.Cause.Error()
		}
	}
	if max > 0 && len(msg) > max {
		msg = msg[:max] + "... (see logs for full error)"
	}
	return msg
}
