// Package portalflow is a location-transparent data portal on top of
// Watermill. Domain types declare their persistence operations by
// implementing the Creator, Fetcher, Updater, and Deleter interfaces, and
// criteria values bind to the type that owns them via PortalTarget. A Portal
// then routes Create/Fetch/Update/Delete calls to those handlers either
// in-process or across a portal channel, depending only on configuration:
// calling code never changes when data access moves to another machine.
//
// Types that implement TransactionalMarker run their handlers inside a
// TransactionHost (the serviced strategy); everything else runs plain. With
// Config.Authentication set to "Windows" the portal forwards host-managed
// credentials instead of a caller principal, and the serving process answers
// with its own identity.
//
// The remote side is a Host: it subscribes to the configured endpoint
// topics, materializes request envelopes through a type registry, executes
// handlers locally, and replies on the request's reply topic. Requests and
// responses travel as CloudEvents v1.0 envelopes over any supported
// transport, so a returned object is always a fresh instance, never a shared
// reference.
//
// # Transports
//
// Portalflow supports 9 portal channel transports out of the box:
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: High-performance messaging
//   - http: Request/response messaging
//   - io: File-based persistence
//   - sqlite: Embedded persistent queue with delayed messages and DLQ management
//   - postgres: Production-ready PostgreSQL queue with SKIP LOCKED and DLQ
//
// # Middleware
//
// The Host's default middleware chain includes correlation ID injection,
// structured logging, OpenTelemetry tracing, Prometheus metrics, and panic
// recovery. Custom middleware can be added via HostDependencies.Middlewares.
// There is intentionally no retry middleware: portal errors travel back to
// the caller in the response envelope.
//
// # Call Hooks
//
// CallHooks provides OnCallStart, OnCallDone, and OnCallError callbacks for
// custom logging, metrics collection, and alerting around portal calls.
//
// When you need more control, PortalDependencies and HostDependencies expose
// well-scoped hooks: bring your own TransactionHost, OutboxStore, middleware
// registrations, or even an entire TransportFactory to plug in custom
// brokers. The examples directory walks through these knobs one scenario at
// a time, from an in-process portal to a transactional remote host.
package portalflow
