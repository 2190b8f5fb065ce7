package portalflow

import (
	"time"

	runtimepkg "github.com/drblury/portalflow/internal/runtime"
	configpkg "github.com/drblury/portalflow/internal/runtime/config"
	envelopepkg "github.com/drblury/portalflow/internal/runtime/envelope"
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	idspkg "github.com/drblury/portalflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/portalflow/internal/runtime/metadata"
	notifypkg "github.com/drblury/portalflow/internal/runtime/notify"
	transportpkg "github.com/drblury/portalflow/internal/runtime/transport"
	newtransport "github.com/drblury/portalflow/transport"
)

type (
	Config             = configpkg.Config
	Portal             = runtimepkg.Portal
	PortalDependencies = runtimepkg.PortalDependencies
	Host               = runtimepkg.Host
	HostDependencies   = runtimepkg.HostDependencies
	OutboxStore        = runtimepkg.OutboxStore
	Transport          = transportpkg.Transport
	TransportFactory   = transportpkg.Factory

	// Capability model: domain types declare portal operations by
	// implementing these interfaces.
	Operation           = runtimepkg.Operation
	Criteria            = runtimepkg.Criteria
	Creator             = runtimepkg.Creator
	Fetcher             = runtimepkg.Fetcher
	Updater             = runtimepkg.Updater
	Deleter             = runtimepkg.Deleter
	TransactionalMarker = runtimepkg.TransactionalMarker
	TransactionalAll    = runtimepkg.TransactionalAll

	// Identity
	Identity = runtimepkg.Identity

	// Transactions
	TransactionHost     = runtimepkg.TransactionHost
	TransactionHostFunc = runtimepkg.TransactionHostFunc
	SQLTransactionHost  = runtimepkg.SQLTransactionHost

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	UnprocessableRequestError = runtimepkg.UnprocessableRequestError

	EndpointInfo          = runtimepkg.EndpointInfo
	EndpointStats         = runtimepkg.EndpointStats
	ConfigValidationError = errspkg.ConfigValidationError
	MissingHandlerError   = errspkg.MissingHandlerError
	TransportFailure      = errspkg.TransportFailure
	BootstrapFailure      = errspkg.BootstrapFailure

	// Call lifecycle hooks
	CallContext = runtimepkg.CallContext
	CallHooks   = runtimepkg.CallHooks

	// Portal metrics
	PortalMetrics         = runtimepkg.PortalMetrics
	PortalObjectMetrics   = runtimepkg.PortalObjectMetrics
	PortalMetricsSnapshot = runtimepkg.PortalMetricsSnapshot

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Wire protocol
	Envelope    = envelopepkg.Envelope
	RemoteError = envelopepkg.RemoteError

	// Change notifications
	ChangeNotifier       = runtimepkg.ChangeNotifier
	ChangeEvent[T any]   = notifypkg.ChangeEvent[T]
	ChangeHandler[T any] = notifypkg.ChangeHandler[T]

	// Transport capabilities
	Capabilities = transportpkg.Capabilities

	// Modular transport types (new package structure)
	TransportBuilder         = newtransport.Builder
	TransportConfig          = newtransport.Config
	TransportRegistry        = newtransport.Registry
	TransportCapabilities    = newtransport.Capabilities
	TransportDLQManager      = newtransport.DLQManager
	TransportQueueIntrospect = newtransport.QueueIntrospector
	TransportDelayedPub      = newtransport.DelayedPublisher
)

var (
	NewPortal      = runtimepkg.NewPortal
	TryNewPortal   = runtimepkg.TryNewPortal
	NewHost        = runtimepkg.NewHost
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Call lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	// Portal metrics
	NewPortalMetrics = runtimepkg.NewPortalMetrics

	// Identity helpers
	WithIdentity        = runtimepkg.WithIdentity
	IdentityFromContext = runtimepkg.IdentityFromContext
	HostManagedIdentity = runtimepkg.HostManagedIdentity

	// Transactions
	NewSQLTransactionHost = runtimepkg.NewSQLTransactionHost
	TxFromContext         = runtimepkg.TxFromContext

	// Change notifications
	NewChangeNotifier = runtimepkg.NewChangeNotifier

	// Transport capabilities
	GetCapabilities = transportpkg.GetCapabilities

	// Modular transport registry (new package structure)
	// Use RegisterTransport and BuildTransport to work with the modular transport packages.
	// Import individual transports via: _ "github.com/drblury/portalflow/transport/kafka"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	// Error taxonomy sentinels and helpers
	ErrCriteriaRequired   = errspkg.ErrCriteriaRequired
	ErrObjectRequired     = errspkg.ErrObjectRequired
	ErrTargetRequired     = errspkg.ErrTargetRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrTypeNotRegistered  = errspkg.ErrTypeNotRegistered
	ErrTransactionHost    = errspkg.ErrTransactionHost
	ErrNotificationsTopic = errspkg.ErrNotificationsTopic
	IsMissingHandler      = errspkg.IsMissingHandler
	IsTransportFailure    = errspkg.IsTransportFailure
	IsBootstrapFailure    = errspkg.IsBootstrapFailure

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Portal operations.
const (
	OperationCreate = runtimepkg.OperationCreate
	OperationFetch  = runtimepkg.OperationFetch
	OperationUpdate = runtimepkg.OperationUpdate
	OperationDelete = runtimepkg.OperationDelete
)

// AuthenticationWindows is the Config.Authentication value that makes the
// portal forward host-managed credentials instead of a caller principal.
const AuthenticationWindows = configpkg.AuthenticationWindows

// Strategy kinds and locations reported by metrics and hooks.
const (
	StrategyPlain    = runtimepkg.StrategyPlain
	StrategyServiced = runtimepkg.StrategyServiced
	LocationLocal    = runtimepkg.LocationLocal
	LocationRemote   = runtimepkg.LocationRemote
)

// Metadata keys - use these constants for standard metadata fields.
const (
	MetadataKeyCorrelationID = runtimepkg.MetadataKeyCorrelationID

	// MetadataKeyDelay is used by SQLite and PostgreSQL transports for delayed message processing.
	// Set to a duration string like "30s", "5m", "1h".
	MetadataKeyDelay = "portalflow_delay"
)

// Envelope extension keys for the portal wire protocol.
const (
	ExtOperation     = envelopepkg.ExtOperation
	ExtObjectType    = envelopepkg.ExtObjectType
	ExtCriteriaType  = envelopepkg.ExtCriteriaType
	ExtReplyTo       = envelopepkg.ExtReplyTo
	ExtCorrelationID = envelopepkg.ExtCorrelationID
	ExtPrincipal     = envelopepkg.ExtPrincipal
	ExtHostManaged   = envelopepkg.ExtHostManaged
	ExtTransactional = envelopepkg.ExtTransactional
	ExtErrorKind     = envelopepkg.ExtErrorKind
	ExtErrorMessage  = envelopepkg.ExtErrorMessage
	ExtTraceID       = envelopepkg.ExtTraceID
	ExtParentID      = envelopepkg.ExtParentID
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryValidation = runtimepkg.ErrorCategoryValidation
	ErrorCategoryTransport  = runtimepkg.ErrorCategoryTransport
	ErrorCategoryDownstream = runtimepkg.ErrorCategoryDownstream
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)

// RegisterChangeHandler subscribes a typed change handler to the host's
// notifications topic.
func RegisterChangeHandler[T any](host *Host, name string, handler ChangeHandler[T]) error {
	return runtimepkg.RegisterChangeHandler(host, name, handler)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// WithDelay returns a Metadata with the portalflow_delay key set for delayed message processing.
// This is a convenience wrapper for SQLite and PostgreSQL transports' delayed message feature.
// Example: portalflow.NewMetadata().Merge(portalflow.WithDelay(30 * time.Second))
func WithDelay(delay time.Duration) Metadata {
	return Metadata{MetadataKeyDelay: delay.String()}
}
