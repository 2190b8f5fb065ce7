package runtime

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	configpkg "github.com/drblury/portalflow/internal/runtime/config"
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	transportpkg "github.com/drblury/portalflow/internal/runtime/transport"
)

// PortalDependencies holds the optional collaborators a Portal can use.
// Leave fields nil to use defaults.
type PortalDependencies struct {
	// TransactionHost executes transactional handlers when they run
	// in-process. Required only when a local type carries the
	// transactional marker.
	TransactionHost TransactionHost

	// TransportFactory overrides how the portal channel is built.
	TransportFactory transportpkg.Factory

	// Hooks observe the lifecycle of every portal call.
	Hooks CallHooks

	// Metrics overrides the Prometheus collector used when
	// Config.MetricsEnabled is set.
	Metrics *PortalMetrics
}

// Portal is the client-side entry point for data access: each operation
// resolves the target handler, queries its transactional marker, and
// delegates to the matching execution strategy with the resolved caller
// identity. Whether a strategy runs in-process or across the portal channel
// is decided by configuration, not by the caller's code.
type Portal struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	deps    PortalDependencies
	types   *typeRegistry
	metrics *PortalMetrics
	hooks   CallHooks

	// One-time channel bootstrap state. bootErr is sticky: a failed
	// bootstrap fails every subsequent call instead of serving with
	// partial remoting configuration.
	bootOnce  sync.Once
	bootErr   error
	channel   transportpkg.Transport
	channelUp bool

	// Lazily created strategy singletons. The once guards make first
	// access safe under concurrent callers.
	plainOnce    sync.Once
	plain        strategy
	plainErr     error
	servicedOnce sync.Once
	serviced     strategy
	servicedErr  error

	// closers collects per-strategy clients for Close. Guarded by its own
	// mutex: the plain and serviced builders run under separate once guards
	// and may append concurrently.
	closersMu sync.Mutex
	closers   []interface{ Close() error }
}

// NewPortal constructs a Portal for the supplied configuration. It panics on
// invalid input; use TryNewPortal to handle errors explicitly.
func NewPortal(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps PortalDependencies) *Portal {
	portal, err := TryNewPortal(conf, log, deps)
	if err != nil {
		panic(err)
	}
	return portal
}

// TryNewPortal constructs a Portal, validating the configuration first.
// Register domain and criteria types on the returned Portal before issuing
// remote calls.
func TryNewPortal(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps PortalDependencies) (*Portal, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating data portal", loggingpkg.LogFields{
		"transport": conf.PubSubSystem,
		"config":    conf,
	})

	p := &Portal{
		Conf:   conf,
		Logger: log,
		deps:   deps,
		types:  newTypeRegistry(),
		hooks:  deps.Hooks,
	}

	if conf.MetricsEnabled {
		p.metrics = deps.Metrics
		if p.metrics == nil {
			p.metrics = NewPortalMetrics(nil)
		}
		if err := p.metrics.Register(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// RegisterTypes records domain object and criteria prototypes so remote
// round trips can materialize results. Registration is required on both
// sides of a portal channel and harmless in pure in-process mode.
func (p *Portal) RegisterTypes(prototypes ...any) {
	p.types.Register(prototypes...)
}

// Create routes criteria to the owning type's create handler and returns the
// newly created, fully populated domain object.
func (p *Portal) Create(ctx context.Context, criteria Criteria) (any, error) {
	desc, err := p.resolveCriteria(criteria, OperationCreate)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, desc, criteria)
}

// Fetch routes criteria to the owning type's fetch handler and returns a
// domain object populated from the backend.
func (p *Portal) Fetch(ctx context.Context, criteria Criteria) (any, error) {
	desc, err := p.resolveCriteria(criteria, OperationFetch)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, desc, criteria)
}

// Update routes the object to its own update handler. The returned reference
// MUST replace the caller's obj: a remote round trip materializes a distinct
// instance.
func (p *Portal) Update(ctx context.Context, obj any) (any, error) {
	if obj == nil {
		return nil, errspkg.ErrObjectRequired
	}
	desc, err := findHandler(obj, OperationUpdate)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, desc, nil)
}

// Delete routes criteria to the owning type's delete handler for immediate,
// unconditional deletion.
func (p *Portal) Delete(ctx context.Context, criteria Criteria) error {
	desc, err := p.resolveCriteria(criteria, OperationDelete)
	if err != nil {
		return err
	}
	_, err = p.execute(ctx, desc, criteria)
	return err
}

// resolveCriteria maps criteria to its owning type's handler. Failures here
// surface before any strategy or backend activity.
func (p *Portal) resolveCriteria(criteria Criteria, op Operation) (handlerDescriptor, error) {
	if criteria == nil {
		return handlerDescriptor{}, errspkg.ErrCriteriaRequired
	}
	target := criteria.PortalTarget()
	if target == nil {
		return handlerDescriptor{}, errspkg.ErrTargetRequired
	}
	return findHandler(target, op)
}

func (p *Portal) execute(ctx context.Context, desc handlerDescriptor, criteria Criteria) (any, error) {
	strat, err := p.strategyFor(ctx, desc.transactional)
	if err != nil {
		return nil, err
	}

	identity := resolveIdentity(ctx, p.Conf)
	objectType := TypeName(desc.target)

	tracer := otel.Tracer("portalflow-portal")
	ctx, span := tracer.Start(ctx, "DataPortal."+string(desc.op))
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.operation", string(desc.op)),
		attribute.String("portal.object_type", objectType),
		attribute.String("portal.strategy", strat.Kind()),
		attribute.String("portal.location", strat.Location()),
	)

	if p.metrics != nil {
		p.metrics.CallStarted(desc.op)
	}
	start := time.Now()

	callCtx := CallContext{
		Operation:  desc.op,
		ObjectType: objectType,
		Strategy:   strat.Kind(),
		Location:   strat.Location(),
		Identity:   identity,
		Context:    ctx,
		StartedAt:  start,
	}

	result, err := p.hooks.run(callCtx, func() (any, error) {
		return strat.Execute(ctx, desc, criteria, identity)
	})

	if p.metrics != nil {
		p.metrics.RecordCall(objectType, desc.op, strat.Kind(), strat.Location(), time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
	}

	return result, err
}

// Close releases the portal channel and reply subscriptions, if any were
// bootstrapped.
func (p *Portal) Close() error {
	p.closersMu.Lock()
	closers := p.closers
	p.closers = nil
	p.closersMu.Unlock()

	var firstErr error
	for _, closer := range closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.channelUp {
		if err := p.channel.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := p.channel.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
