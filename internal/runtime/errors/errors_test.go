package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	// Verify sentinel errors have expected messages
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrCriteriaRequired", ErrCriteriaRequired, "portalflow: criteria is required"},
		{"ErrObjectRequired", ErrObjectRequired, "portalflow: target object is required"},
		{"ErrTargetRequired", ErrTargetRequired, "portalflow: criteria resolved no target type"},
		{"ErrConfigRequired", ErrConfigRequired, "portalflow: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "portalflow: logger is required"},
		{"ErrHostRequired", ErrHostRequired, "portalflow: portal host is required"},
		{"ErrTypeNotRegistered", ErrTypeNotRegistered, "portalflow: payload type is not registered"},
		{"ErrTransactionHost", ErrTransactionHost, "portalflow: transaction host is required for transactional handlers"},
		{"ErrNotificationsTopic", ErrNotificationsTopic, "portalflow: notifications topic is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "portalflow: publisher is required"},
		{"ErrChangeHandlerNeeded", ErrChangeHandlerNeeded, "portalflow: change handler function is required"},
		{"ErrChangePointerNeeded", ErrChangePointerNeeded, "portalflow: change handler type parameter must be a pointer type"},
		{"ErrReplyTopicMissing", ErrReplyTopicMissing, "portalflow: request envelope carries no reply topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestMissingHandlerError(t *testing.T) {
	err := NewMissingHandlerError("*billing.Invoice", "delete")

	want := `portalflow: type *billing.Invoice has no handler for operation "delete"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsMissingHandler(err) {
		t.Error("IsMissingHandler() = false, want true")
	}
	if IsMissingHandler(errors.New("other")) {
		t.Error("IsMissingHandler() matched an unrelated error")
	}
}

func TestTransportFailure(t *testing.T) {
	inner := errors.New("broker unreachable")
	err := NewTransportFailure("publish", inner)

	want := "portalflow: transport failure during publish: broker unreachable"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should match the wrapped error")
	}
	if !IsTransportFailure(err) {
		t.Error("IsTransportFailure() = false, want true")
	}
	if IsTransportFailure(inner) {
		t.Error("IsTransportFailure() matched an unwrapped error")
	}
}

func TestBootstrapFailure(t *testing.T) {
	inner := errors.New("no subscriber for system")
	err := NewBootstrapFailure(inner)

	want := "portalflow: channel bootstrap failed: no subscriber for system"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should match the wrapped error")
	}
	if !IsBootstrapFailure(err) {
		t.Error("IsBootstrapFailure() = false, want true")
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	// Test Error()
	want := "portalflow: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	// Test Unwrap()
	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		err := NewConfigValidationError(nil)
		if err != nil {
			t.Errorf("NewConfigValidationError(nil) = %v, want nil", err)
		}
	})

	t.Run("wraps error correctly", func(t *testing.T) {
		inner := errors.New("bad config")
		err := NewConfigValidationError(inner)

		var cfgErr ConfigValidationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigValidationError, got %T", err)
		}
		if cfgErr.Err != inner {
			t.Errorf("wrapped error = %v, want %v", cfgErr.Err, inner)
		}
	})

	t.Run("errors.Is works with wrapped error", func(t *testing.T) {
		inner := errors.New("specific error")
		err := NewConfigValidationError(inner)

		if !errors.Is(err, inner) {
			t.Error("errors.Is should match wrapped error")
		}
	})
}
