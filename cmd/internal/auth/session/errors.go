package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when required settings (client id, secret) are missing.
	ErrConfiguration = errors.New("session: invalid configuration")

	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("session: missing authorization code")

	// ErrInvalidState is returned when the callback state is absent, expired or forged.
	ErrInvalidState = errors.New("session: invalid login state")

	// ErrAuthenticationFailed wraps any code-exchange failure.
	ErrAuthenticationFailed = errors.New("session: authentication failed")

	// ErrSessionResolution is the class of read-path failures.
	ErrSessionResolution = errors.New("session: resolution failed")
)

// Resolution stages.
const (
	StageBinding = "binding"
	StageProfile = "profile"
	StageChannel = "channel"
)

// ResolutionError records which read-path stage failed.
type ResolutionError struct {
	Stage string
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrSessionResolution.Error(), e.Stage)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSessionResolution.Error(), e.Stage, e.Err)
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSessionResolution}
	}
	return []error{ErrSessionResolution, e.Err}
}
