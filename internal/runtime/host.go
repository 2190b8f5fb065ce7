package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	configpkg "github.com/drblury/portalflow/internal/runtime/config"
	envelopepkg "github.com/drblury/portalflow/internal/runtime/envelope"
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	transportpkg "github.com/drblury/portalflow/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// OutboxStore persists outgoing change notifications so they can be
// forwarded reliably.
type OutboxStore interface {
	StoreOutgoingMessage(ctx context.Context, eventType, uuid, payload string) error
}

// HostDependencies holds the optional collaborators that the Host can use.
// Leave fields nil to skip the related behaviour.
type HostDependencies struct {
	TransactionHost           TransactionHost
	Outbox                    OutboxStore
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	ErrorClassifier           ErrorClassifier
}

// Host serves the remote side of a portal channel: it subscribes to the
// configured endpoint topics, decodes request envelopes, executes handlers
// through the local strategies, and publishes response envelopes to each
// request's reply topic.
type Host struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	types *typeRegistry
	tx    TransactionHost

	notifier *ChangeNotifier

	endpoints   []*EndpointInfo
	endpointsMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
	resourceTracker *resourceTracker
}

// NewHost constructs a Host for the supplied configuration. Register domain
// types on the returned Host before calling Start.
func NewHost(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps HostDependencies) *Host {
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating portal host",
		loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"config":        conf,
		})

	h := &Host{
		Conf:            conf,
		Logger:          log,
		types:           newTypeRegistry(),
		tx:              deps.TransactionHost,
		resourceTracker: newResourceTracker(),
	}

	if deps.ErrorClassifier != nil {
		h.errorClassifier = deps.ErrorClassifier
	} else {
		h.errorClassifier = defaultErrorClassifier
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		panic(err)
	}

	h.publisher = transport.Publisher
	h.subscriber = transport.Subscriber

	if conf.NotificationsTopic != "" {
		h.notifier = NewChangeNotifier(h.publisher, conf.NotificationsTopic, conf.Source(), deps.Outbox, log)
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		panic(err)
	}

	h.router = router
	h.router.AddPlugin(plugin.SignalsHandler)

	h.registerConfiguredMiddlewares(deps)
	h.registerEndpoints()

	return h
}

// RegisterTypes records domain object and criteria prototypes so request
// envelopes can be materialized. The host can only serve types registered
// here.
func (h *Host) RegisterTypes(prototypes ...any) {
	h.types.Register(prototypes...)
}

// Start runs the underlying Watermill router until the provided context is
// cancelled.
func (h *Host) Start(ctx context.Context) error {
	h.StartIntrospectionServer()
	h.startHTTPServers()
	return routerRun(h.router, ctx)
}

// registerEndpoints attaches one router handler per configured portal
// endpoint. The serviced endpoint wraps handler execution in the
// transaction host.
func (h *Host) registerEndpoints() {
	if h.Conf.PortalServer != "" {
		h.addEndpoint("plain_portal", h.Conf.PortalServer, StrategyPlain)
	}
	if h.Conf.ServicedPortalServer != "" && h.Conf.ServicedPortalServer != h.Conf.PortalServer {
		h.addEndpoint("serviced_portal", h.Conf.ServicedPortalServer, StrategyServiced)
	}
}

func (h *Host) addEndpoint(name, topic, strategyKind string) {
	stats := newEndpointStats(name, topic, h.getResourceTracker())
	info := &EndpointInfo{
		Name:         name,
		RequestTopic: topic,
		Strategy:     strategyKind,
		Stats:        stats,
	}

	h.endpointsMu.Lock()
	h.endpoints = append(h.endpoints, info)
	h.endpointsMu.Unlock()

	h.router.AddNoPublisherHandler(
		name,
		topic,
		h.subscriber,
		h.endpointHandler(strategyKind, stats),
	)
}

// endpointHandler wraps request serving with per-endpoint stats. Handler
// errors travel back to the caller inside the response envelope; only
// errors that prevent replying propagate to the router.
func (h *Host) endpointHandler(strategyKind string, stats *EndpointStats) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		invocation := stats.onRequestStart(msg)
		start := time.Now()

		handlerErr, routerErr := h.serveRequest(strategyKind, msg)

		recorded := handlerErr
		if recorded == nil {
			recorded = routerErr
		}
		stats.onRequestFinish(invocation, time.Since(start), recorded, h.getErrorClassifier())

		return routerErr
	}
}

// serveRequest decodes one request envelope, executes it, and publishes the
// response. The first return value is the handler outcome (reported to the
// caller), the second is a host-side failure that prevented a reply.
func (h *Host) serveRequest(strategyKind string, msg *message.Message) (error, error) {
	var env envelopepkg.Envelope
	if err := jsoncodec.Unmarshal(msg.Payload, &env); err != nil {
		return nil, &UnprocessableRequestError{requestMessage: string(msg.Payload), err: err}
	}
	if err := env.Validate(); err != nil {
		return nil, &UnprocessableRequestError{requestMessage: string(msg.Payload), err: err}
	}
	if env.ReplyTo() == "" {
		return nil, errspkg.ErrReplyTopicMissing
	}

	ctx := msg.Context()
	result, handlerErr := h.executeRequest(ctx, strategyKind, env)

	response, handlerErr := h.buildResponse(env, result, handlerErr)

	raw, err := jsoncodec.Marshal(response)
	if err != nil {
		return handlerErr, errspkg.NewTransportFailure("encode", err)
	}

	reply := message.NewMessage(response.ID, raw)
	reply.SetContext(ctx)
	if err := h.publisher.Publish(env.ReplyTo(), reply); err != nil {
		return handlerErr, errspkg.NewTransportFailure("publish", err)
	}

	if handlerErr == nil && h.notifier != nil {
		op := Operation(env.Operation())
		if op != OperationFetch {
			h.notifier.NotifyChange(ctx, op, env.ObjectType(), result)
		}
	}

	return handlerErr, nil
}

// executeRequest resolves the request's handler from the type registry and
// runs it through the endpoint's local strategy.
func (h *Host) executeRequest(ctx context.Context, strategyKind string, env envelopepkg.Envelope) (any, error) {
	identity, err := h.requestIdentity(env)
	if err != nil {
		return nil, err
	}

	op := Operation(env.Operation())

	var target any
	var criteria Criteria

	if op == OperationUpdate {
		target, err = decodePayload(env, h.types)
		if err != nil {
			return nil, err
		}
	} else {
		target, err = h.types.New(env.ObjectType())
		if err != nil {
			return nil, err
		}

		payload, err := decodePayload(env, h.types)
		if err != nil {
			return nil, err
		}
		typed, ok := payload.(Criteria)
		if !ok {
			return nil, fmt.Errorf("%w: payload type %s is not criteria", errspkg.ErrCriteriaRequired, TypeName(payload))
		}
		criteria = typed
	}

	desc, err := findHandler(target, op)
	if err != nil {
		return nil, err
	}

	return h.localStrategy(strategyKind).Execute(ctx, desc, criteria, identity)
}

// requestIdentity reconstructs the caller identity from the envelope. Host
// managed requests carry no principal: the host answers with its own
// process credentials.
func (h *Host) requestIdentity(env envelopepkg.Envelope) (Identity, error) {
	if env.HostManaged() {
		return HostManagedIdentity(), nil
	}

	var identity Identity
	ok, err := env.Principal(&identity)
	if err != nil {
		return Identity{}, errspkg.NewTransportFailure("decode", err)
	}
	if !ok {
		return Identity{}, nil
	}
	return identity, nil
}

func (h *Host) localStrategy(kind string) strategy {
	if kind == StrategyServiced {
		return newServicedStrategy(h.tx, h.Logger)
	}
	return newPlainStrategy(h.Logger)
}

// buildResponse encodes the handler outcome into a response envelope. Encode
// failures downgrade the response to an error envelope so the caller is
// never left waiting.
func (h *Host) buildResponse(req envelopepkg.Envelope, result any, handlerErr error) (envelopepkg.Envelope, error) {
	response := envelopepkg.NewResponse(req, h.Conf.Source())
	if handlerErr != nil {
		return envelopepkg.EncodeError(response, handlerErr), handlerErr
	}
	if result == nil {
		return response, nil
	}

	encoded, err := encodePayload(response, result)
	if err != nil {
		handlerErr = errspkg.NewTransportFailure("encode", err)
		return envelopepkg.EncodeError(response, handlerErr), handlerErr
	}
	return encoded, nil
}

func (h *Host) registerConfiguredMiddlewares(deps HostDependencies) {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := reg.register(h); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			panic(fmt.Sprintf("failed to register middleware %s: %v", name, err))
		}
	}
}

func (h *Host) getErrorClassifier() ErrorClassifier {
	if h.errorClassifier == nil {
		return defaultErrorClassifier
	}
	return h.errorClassifier
}

func (h *Host) getResourceTracker() *resourceTracker {
	if h.resourceTracker == nil {
		h.resourceTracker = newResourceTracker()
	}
	return h.resourceTracker
}

// Endpoints returns the registered portal endpoints with their stats.
func (h *Host) Endpoints() []*EndpointInfo {
	h.endpointsMu.RLock()
	defer h.endpointsMu.RUnlock()

	endpoints := make([]*EndpointInfo, len(h.endpoints))
	copy(endpoints, h.endpoints)
	return endpoints
}

// RegisterHTTPHandler mounts an HTTP handler on the shared server for the
// given port. Servers are started by Start.
func (h *Host) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	h.httpServersMu.Lock()
	defer h.httpServersMu.Unlock()

	if h.httpServers == nil {
		h.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := h.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		h.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (h *Host) startHTTPServers() {
	h.httpServersMu.Lock()
	defer h.httpServersMu.Unlock()

	for port, mux := range h.httpServers {
		addr := fmt.Sprintf(":%d", port)
		h.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				h.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
