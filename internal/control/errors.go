package control

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Expected no-op conditions
// (already-on, already-off, nothing-to-stop) are not errors at all; they are
// successful results carrying a marker flag.
type Kind string

const (
	// KindValidation marks missing or invalid input. Always pre-flight;
	// the operation had no side effects.
	KindValidation Kind = "validation"

	// KindNotFound marks a resource that does not exist for this owner.
	// Foreign resources report identically to missing ones.
	KindNotFound Kind = "not_found"

	// KindAuthorization marks an insufficient actor role, checked before
	// any resource lookup.
	KindAuthorization Kind = "authorization"

	// KindRemote marks a remote control channel or manifest provisioner
	// failure, including timeouts. The raw diagnostic is preserved.
	KindRemote Kind = "remote"

	// KindProcess marks a capture process failure.
	KindProcess Kind = "process"

	// KindInternal marks datastore and other unexpected failures.
	KindInternal Kind = "internal"
)

// OpError is the failure value returned by every orchestrator operation.
type OpError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *OpError) Unwrap() error { return e.Err }

// Detail returns the underlying diagnostic, if any.
func (e *OpError) Detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// KindOf extracts the failure classification, defaulting to internal.
func KindOf(err error) Kind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindInternal
}

func validationErr(format string, args ...any) error {
	return &OpError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...any) error {
	return &OpError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func authorizationErr(message string) error {
	return &OpError{Kind: KindAuthorization, Message: message}
}

func remoteErr(message string, err error) error {
	return &OpError{Kind: KindRemote, Message: message, Err: err}
}

func processErr(message string, err error) error {
	return &OpError{Kind: KindProcess, Message: message, Err: err}
}

func internalErr(message string, err error) error {
	return &OpError{Kind: KindInternal, Message: message, Err: err}
}
