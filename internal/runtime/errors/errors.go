package errors

import (
	"fmt"

	sterrors "errors"
)

var (
	ErrCriteriaRequired    = sterrors.New("portalflow: criteria is required")
	ErrObjectRequired      = sterrors.New("portalflow: target object is required")
	ErrTargetRequired      = sterrors.New("portalflow: criteria resolved no target type")
	ErrConfigRequired      = sterrors.New("portalflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("portalflow: logger is required")
	ErrHostRequired        = sterrors.New("portalflow: portal host is required")
	ErrTypeNotRegistered   = sterrors.New("portalflow: payload type is not registered")
	ErrTransactionHost     = sterrors.New("portalflow: transaction host is required for transactional handlers")
	ErrNotificationsTopic  = sterrors.New("portalflow: notifications topic is required")
	ErrPublisherRequired   = sterrors.New("portalflow: publisher is required")
	ErrChangeHandlerNeeded = sterrors.New("portalflow: change handler function is required")
	ErrChangePointerNeeded = sterrors.New("portalflow: change handler type parameter must be a pointer type")
	ErrReplyTopicMissing   = sterrors.New("portalflow: request envelope carries no reply topic")
)

// MissingHandlerError reports that a domain type does not implement the
// capability required by the requested portal operation. It is returned
// before any backend or network activity takes place.
type MissingHandlerError struct {
	ObjectType string
	Operation  string
}

func (e *MissingHandlerError) Error() string {
	return fmt.Sprintf("portalflow: type %s has no handler for operation %q", e.ObjectType, e.Operation)
}

// NewMissingHandlerError builds a MissingHandlerError for the given type name and operation.
func NewMissingHandlerError(objectType, operation string) *MissingHandlerError {
	return &MissingHandlerError{ObjectType: objectType, Operation: operation}
}

// IsMissingHandler reports whether err is (or wraps) a MissingHandlerError.
func IsMissingHandler(err error) bool {
	var target *MissingHandlerError
	return sterrors.As(err, &target)
}

// TransportFailure wraps errors raised while publishing a portal request or
// waiting for its reply. The portal never retries these; retry policy belongs
// to the caller.
type TransportFailure struct {
	Stage string // "publish", "reply", "encode", "decode"
	Err   error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("portalflow: transport failure during %s: %v", e.Stage, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// NewTransportFailure wraps err with the pipeline stage it occurred in.
func NewTransportFailure(stage string, err error) *TransportFailure {
	return &TransportFailure{Stage: stage, Err: err}
}

// IsTransportFailure reports whether err is (or wraps) a TransportFailure.
func IsTransportFailure(err error) bool {
	var target *TransportFailure
	return sterrors.As(err, &target)
}

// BootstrapFailure reports that the one-time portal channel setup failed.
// The portal treats this as fatal: every subsequent call observes the same
// error instead of running with partial remoting configuration.
type BootstrapFailure struct {
	Err error
}

func (e *BootstrapFailure) Error() string {
	return fmt.Sprintf("portalflow: channel bootstrap failed: %v", e.Err)
}

func (e *BootstrapFailure) Unwrap() error { return e.Err }

// NewBootstrapFailure wraps err as a fatal bootstrap error.
func NewBootstrapFailure(err error) *BootstrapFailure {
	return &BootstrapFailure{Err: err}
}

// IsBootstrapFailure reports whether err is (or wraps) a BootstrapFailure.
func IsBootstrapFailure(err error) bool {
	var target *BootstrapFailure
	return sterrors.As(err, &target)
}

// ConfigValidationError wraps configuration validation failures raised by
// TryNewPortal and TryNewHost.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("portalflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, or returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
