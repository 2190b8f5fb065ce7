package envelope

import (
	"errors"

	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
)

// Error kinds carried in the ExtErrorKind extension of failed responses.
const (
	// KindMissingHandler marks a request whose target type has no handler
	// for the operation.
	KindMissingHandler = "missing_handler"

	// KindInvalidArgument marks a request whose payload is absent or
	// malformed.
	KindInvalidArgument = "invalid_argument"

	// KindTypeNotRegistered marks a request naming a type unknown to the
	// host's registry.
	KindTypeNotRegistered = "type_not_registered"

	// KindTransactionHost marks a transactional request reaching a host
	// with no transaction host configured.
	KindTransactionHost = "transaction_host"

	// KindBackend marks a failure raised by the backend handler itself.
	// The original message is carried verbatim.
	KindBackend = "backend"
)

// RemoteError re-surfaces a failure reported by the portal host. Error()
// returns the host's original message unchanged so callers see the backend's
// failure reason, not a transport-flavoured rewrite.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Is maps remote error kinds back onto the local taxonomy so callers can use
// errors.Is against the portal sentinels regardless of call locality.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case KindTypeNotRegistered:
		return target == errspkg.ErrTypeNotRegistered
	case KindTransactionHost:
		return target == errspkg.ErrTransactionHost
	}
	return false
}

// EncodeError records err on a response envelope, classifying it into a
// portable error kind.
func EncodeError(env Envelope, err error) Envelope {
	return env.
		WithExtension(ExtErrorKind, classifyKind(err)).
		WithExtension(ExtErrorMessage, err.Error())
}

// Failed reports whether the response envelope carries an error.
func (e Envelope) Failed() bool {
	return e.GetExtensionString(ExtErrorKind) != ""
}

// DecodeError reconstructs the failure carried by a response envelope.
// Returns nil when the envelope reports success.
func (e Envelope) DecodeError() error {
	kind := e.GetExtensionString(ExtErrorKind)
	if kind == "" {
		return nil
	}
	message := e.GetExtensionString(ExtErrorMessage)
	if kind == KindMissingHandler {
		// Reconstruct a typed error so errors.As keeps working across the
		// remote boundary.
		return &errspkg.MissingHandlerError{
			ObjectType: e.ObjectType(),
			Operation:  e.Operation(),
		}
	}
	return &RemoteError{Kind: kind, Message: message}
}

func classifyKind(err error) string {
	switch {
	case errspkg.IsMissingHandler(err):
		return KindMissingHandler
	case errors.Is(err, errspkg.ErrCriteriaRequired),
		errors.Is(err, errspkg.ErrObjectRequired),
		errors.Is(err, errspkg.ErrTargetRequired):
		return KindInvalidArgument
	case errors.Is(err, errspkg.ErrTypeNotRegistered):
		return KindTypeNotRegistered
	case errors.Is(err, errspkg.ErrTransactionHost):
		return KindTransactionHost
	default:
		return KindBackend
	}
}
