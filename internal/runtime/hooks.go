package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
)

// CallContext provides information about a portal call to hooks.
type CallContext struct {
	// Operation is the portal operation being executed.
	Operation Operation
	// ObjectType is the registered type name of the call target.
	ObjectType string
	// Strategy is "plain" or "serviced".
	Strategy string
	// Location is "local" or "remote".
	Location string
	// Identity is the resolved caller identity for this call.
	Identity Identity
	// Context is the context the call runs under.
	Context context.Context
	// StartedAt is when the call started.
	StartedAt time.Time
	// Duration is how long the call took (only set in OnCallDone and OnCallError).
	Duration time.Duration
}

// CallHooks defines callbacks for portal call lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type CallHooks struct {
	// OnCallStart is called after routing, before the strategy executes.
	OnCallStart func(ctx CallContext)

	// OnCallDone is called when a call completes successfully.
	// Duration will be set to how long the call took.
	OnCallDone func(ctx CallContext)

	// OnCallError is called when a call fails. The error is passed as the
	// second argument. Duration will be set to how long the call took
	// before failing.
	OnCallError func(ctx CallContext, err error)
}

// Merge combines two CallHooks, creating a new CallHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h CallHooks) Merge(other CallHooks) CallHooks {
	return CallHooks{
		OnCallStart: chainStartHooks(h.OnCallStart, other.OnCallStart),
		OnCallDone:  chainDoneHooks(h.OnCallDone, other.OnCallDone),
		OnCallError: chainErrorHooks(h.OnCallError, other.OnCallError),
	}
}

func chainStartHooks(a, b func(CallContext)) func(CallContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(CallContext)) func(CallContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(CallContext, error)) func(CallContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// run dispatches the call through the hooks, returning the handler result
// untouched.
func (h CallHooks) run(callCtx CallContext, call func() (any, error)) (any, error) {
	if h.OnCallStart != nil {
		h.OnCallStart(callCtx)
	}

	result, err := call()

	callCtx.Duration = time.Since(callCtx.StartedAt)
	if err != nil {
		if h.OnCallError != nil {
			h.OnCallError(callCtx, err)
		}
	} else {
		if h.OnCallDone != nil {
			h.OnCallDone(callCtx)
		}
	}

	return result, err
}

// LoggingHooks returns pre-built hooks that log portal call lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) CallHooks {
	return CallHooks{
		OnCallStart: func(ctx CallContext) {
			logger.Info("Portal call started", loggingpkg.LogFields{
				"operation":   ctx.Operation,
				"object_type": ctx.ObjectType,
				"strategy":    ctx.Strategy,
				"location":    ctx.Location,
			})
		},
		OnCallDone: func(ctx CallContext) {
			logger.Info("Portal call completed", loggingpkg.LogFields{
				"operation":   ctx.Operation,
				"object_type": ctx.ObjectType,
				"strategy":    ctx.Strategy,
				"location":    ctx.Location,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnCallError: func(ctx CallContext, err error) {
			logger.Error("Portal call failed", err, loggingpkg.LogFields{
				"operation":   ctx.Operation,
				"object_type": ctx.ObjectType,
				"strategy":    ctx.Strategy,
				"location":    ctx.Location,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that feed custom counters.
func MetricsHooks(onStart, onDone, onError func(objectType string, op Operation)) CallHooks {
	return CallHooks{
		OnCallStart: func(ctx CallContext) {
			if onStart != nil {
				onStart(ctx.ObjectType, ctx.Operation)
			}
		},
		OnCallDone: func(ctx CallContext) {
			if onDone != nil {
				onDone(ctx.ObjectType, ctx.Operation)
			}
		},
		OnCallError: func(ctx CallContext, err error) {
			if onError != nil {
				onError(ctx.ObjectType, ctx.Operation)
			}
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on call errors.
func AlertingHooks(alertFunc func(ctx CallContext, err error)) CallHooks {
	return CallHooks{
		OnCallError: alertFunc,
	}
}
