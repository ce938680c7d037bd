// Package exitcodes provides centralized exit code definitions and error
// handling for the freshen tool. Exit codes are organized in ranges to
// categorize different types of failures:
//
//	0:     Success
//	1-9:   Input/Configuration Errors (e.g., missing environment, bad config)
//	10-19: Registry Errors (e.g., protocol failures, missing base image)
//	20-29: Runtime Errors (e.g., git query failures, I/O errors)
//
// A failing build command is the one exception to the ranges: its own exit
// code is forwarded unchanged, wrapped in an ExitCodeError.
package exitcodes

import (
	"errors"
	"fmt"
)

// Exit code constants organized by category
const (
	// Success (0)
	ExitSuccess = 0

	// Input/Configuration Errors (1-9)
	ExitMissingEnvironment      = 1 // Required environment variable not set
	ExitInputConfigurationError = 2 // Image list file malformed or unreadable
	ExitUnmatchedForcedArgument = 3 // Forced name matches no image or base
	ExitInvalidImageReference   = 4 // Image reference failed to parse

	// Registry Errors (10-19)
	ExitRegistryProtocolError  = 10 // Unexpected HTTP status or exhausted retries
	ExitRegistryMalformedReply = 11 // Bad JSON or missing expected field
	ExitMissingBaseImage       = 12 // Base image absent from its registry
	ExitNoMatchingPlatform     = 13 // Manifest list lacks the target platform

	// Runtime Errors (20-29)
	ExitGeneralRuntimeError = 20 // General runtime/system error
	ExitGitQueryError       = 21 // git history lookup failed
)

// ExitCodeError wraps an error with an exit code for consistent error
// handling. This type is used throughout the codebase to propagate both error
// details and the appropriate exit code up to the single handler in main.
type ExitCodeError struct {
	Code int   // Exit code to return
	Err  error // Underlying error
}

func (e *ExitCodeError) Error() string {
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// New builds an ExitCodeError from a code and a formatted message.
func New(code int, format string, args ...any) *ExitCodeError {
	return &ExitCodeError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches an exit code to an existing error. A nil err returns nil.
func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitCodeError{Code: code, Err: err}
}

// IsExitCodeError checks if an error is an ExitCodeError and returns its code.
// Returns false and 0 if the error is not an ExitCodeError.
func IsExitCodeError(err error) (int, bool) {
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// CodeDescriptions maps exit codes to their human-readable descriptions
var CodeDescriptions = map[int]string{
	ExitSuccess:                 "Success",
	ExitMissingEnvironment:      "Required environment variable not set",
	ExitInputConfigurationError: "Image list file malformed or unreadable",
	ExitUnmatchedForcedArgument: "Forced name matches no image or base",
	ExitInvalidImageReference:   "Image reference failed to parse",
	ExitRegistryProtocolError:   "Unexpected registry response or exhausted retries",
	ExitRegistryMalformedReply:  "Malformed registry response",
	ExitMissingBaseImage:        "Base image absent from its registry",
	ExitNoMatchingPlatform:      "Manifest list lacks the target platform",
	ExitGeneralRuntimeError:     "General runtime/system error",
	ExitGitQueryError:           "git history lookup failed",
}
