// Package types provides shared types, interfaces, and errors for the application.
package types

import "errors"

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Configuration errors
	ErrConfigInvalid       = errors.New("configuration invalid or incomplete")
	ErrUserDataDirRequired = errors.New("user_data_dir is required")
	ErrProfileDirMissing   = errors.New("profile directory does not exist")

	// Action Lock errors
	ErrLockBusy  = errors.New("action lock held by another owner")
	ErrLockLost  = errors.New("action lock renewal observed a new owner")
	ErrNotOwner  = errors.New("caller is not the current lock owner")
	ErrIOTimeout = errors.New("coordination file operation exceeded its wait budget")

	// File Mutex errors
	ErrMutexBusy = errors.New("file mutex held and not stale")

	// Startup Arbiter errors
	ErrStartupContended = errors.New("could not acquire startup mutex")
	ErrStartupTimeout   = errors.New("browser launched but debug port never opened")
	ErrDriverNotReady   = errors.New("driver failed to attach to debug endpoint")

	// Window Lifecycle errors
	ErrWindowLost     = errors.New("window target disappeared and could not be recreated")
	ErrWindowAttach   = errors.New("driver could not confirm the new target after switching")
	ErrElementMissing = errors.New("element not found")
	ErrNotInteractable = errors.New("element not interactable")
	ErrHandlerTimeout = errors.New("handler operation timed out")

	// Generic
	ErrIO       = errors.New("coordination file read/write problem")
	ErrInternal = errors.New("internal error")

	// Request validation (ambient HTTP transport)
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidURL     = errors.New("invalid URL")
)

// LockError describes an Action Lock failure, carrying the context a caller
// needs to decide whether to retry (current owner, expiry) without parsing
// the message string.
type LockError struct {
	Reason       string // "busy", "io_error", "lost"
	CurrentOwner string
	ExpiresAt    int64 // seconds since epoch, 0 if unknown
	Err          error
}

func (e *LockError) Error() string {
	if e.CurrentOwner != "" {
		return "action lock " + e.Reason + ": held by " + e.CurrentOwner
	}
	return "action lock " + e.Reason
}

func (e *LockError) Unwrap() error { return e.Err }

// NewLockBusyError reports a failed acquire because another owner holds the lease.
func NewLockBusyError(currentOwner string, expiresAt int64) *LockError {
	return &LockError{Reason: "busy", CurrentOwner: currentOwner, ExpiresAt: expiresAt, Err: ErrLockBusy}
}

// NewLockLostError reports that a renew() call observed a different owner.
func NewLockLostError(currentOwner string) *LockError {
	return &LockError{Reason: "lost", CurrentOwner: currentOwner, Err: ErrLockLost}
}

// StartupError describes a Startup Arbiter failure.
type StartupError struct {
	Stage    string // "mutex", "launch", "attach"
	Endpoint string // host:port attempted, if any
	Message  string
	Err      error
}

func (e *StartupError) Error() string {
	if e.Endpoint != "" {
		return e.Message + " (endpoint " + e.Endpoint + ")"
	}
	return e.Message
}

func (e *StartupError) Unwrap() error { return e.Err }

// NewStartupContendedError reports a failure to acquire the startup mutex
// with no rendezvous fallback available.
func NewStartupContendedError() *StartupError {
	return &StartupError{
		Stage:   "mutex",
		Message: "could not acquire startup mutex and no valid rendezvous endpoint was found",
		Err:     ErrStartupContended,
	}
}

// NewStartupTimeoutError reports a launched browser whose debug port never opened.
func NewStartupTimeoutError(endpoint string) *StartupError {
	return &StartupError{
		Stage:    "launch",
		Endpoint: endpoint,
		Message:  "browser launched but debug port never opened within launch_timeout",
		Err:      ErrStartupTimeout,
	}
}

// NewDriverAttachError reports a discovered/launched endpoint where the
// driver failed to attach.
func NewDriverAttachError(endpoint string, cause error) *StartupError {
	return &StartupError{
		Stage:    "attach",
		Endpoint: endpoint,
		Message:  "driver failed to attach to debug endpoint",
		Err:      cause,
	}
}

// WindowError describes a Window Lifecycle failure.
type WindowError struct {
	AgentTag string
	TargetID string
	Message  string
	Err      error
}

func (e *WindowError) Error() string { return e.Message }

func (e *WindowError) Unwrap() error { return e.Err }

// NewWindowLostError reports that an agent's window could not be recreated.
func NewWindowLostError(agentTag string, cause error) *WindowError {
	return &WindowError{
		AgentTag: agentTag,
		Message:  "window could not be created or recreated for this agent",
		Err:      errOrDefault(cause, ErrWindowLost),
	}
}

// NewWindowAttachError reports that a newly created target could not be
// confirmed by the driver after switching to it.
func NewWindowAttachError(targetID string, cause error) *WindowError {
	return &WindowError{
		TargetID: targetID,
		Message:  "could not confirm new target after switching driver handle",
		Err:      errOrDefault(cause, ErrWindowAttach),
	}
}

func errOrDefault(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
