package runtime

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	idspkg "github.com/drblury/portalflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
)

// MiddlewareBuilder constructs a handler middleware using the provided host instance.
type MiddlewareBuilder func(*Host) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Host router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard middleware chain used by the Host
// constructor. There is deliberately no retry or poison queue in the chain:
// portal errors travel back to the caller in the response envelope, and a
// retried request could execute a non-idempotent handler twice.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds Prometheus metrics to the handler.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(h *Host) (message.HandlerMiddleware, error) {
			if !h.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				prometheus.DefaultRegisterer,
				"portalflow",
				h.Conf.PubSubSystem,
			)

			metricsBuilder.AddPrometheusRouterMetrics(h.router)

			if h.Conf.MetricsPort > 0 {
				h.RegisterHTTPHandler(h.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// CorrelationIDMiddleware ensures each processed request carries a correlation identifier.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Builder: func(h *Host) (message.HandlerMiddleware, error) {
			return h.correlationIDMiddleware(), nil
		},
	}
}

// LogMessagesMiddleware logs the full payload and metadata of handled requests.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(h *Host) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = h.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return h.logMessagesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps request handling in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(h *Host) (message.HandlerMiddleware, error) {
			return h.tracerMiddleware(), nil
		},
	}
}

// RecovererMiddleware converts panics into handler errors so a panicking
// portal handler cannot take the router down.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// register attaches the supplied middleware to the host router.
func (cfg MiddlewareRegistration) register(h *Host) error {
	if h.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(h)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	h.router.AddMiddleware(mw)
	return nil
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (h *Host) RegisterMiddleware(cfg MiddlewareRegistration) error {
	return cfg.register(h)
}

// correlationIDMiddleware injects a correlation ID into the message metadata when missing.
func (h *Host) correlationIDMiddleware() message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			if _, ok := msg.Metadata[MetadataKeyCorrelationID]; !ok {
				msg.Metadata[MetadataKeyCorrelationID] = idspkg.CreateULID()
			}
			return next(msg)
		}
	}
}

// logMessagesMiddleware logs all processed requests with their metadata.
func (h *Host) logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing portal request", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"payload":      string(msg.Payload),
				"metadata":     msg.Metadata,
			})
			return next(msg)
		}
	}
}

// tracerMiddleware wraps request handling with an OpenTelemetry span.
func (h *Host) tracerMiddleware() message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			tracer := otel.Tracer("portalflow-host")
			ctx, span := tracer.Start(
				msg.Context(),
				"ServePortalRequest",
			)
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("message.uuid", msg.UUID),
				attribute.String("message.metadata", fmt.Sprintf("%v", msg.Metadata)),
			)
			return next(msg)
		}
	}
}
