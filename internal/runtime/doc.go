/*
Package runtime provides the core data portal infrastructure for portalflow.

# Architecture Overview

The runtime package implements a location-transparent data access layer on
top of Watermill. Domain types declare their persistence capabilities as
interfaces, and the Portal routes Create/Fetch/Update/Delete calls to those
handlers either in-process or across a configured portal channel without the
caller knowing which.

# Package Structure

The runtime package is organized into the following components:

## Portal (portal.go, bootstrap.go, strategy.go, remote.go)

The Portal struct is the client-side router:
  - capability resolution (capability.go): domain types implement
    Creator/Fetcher/Updater/Deleter; criteria bind to their owning type
  - execution strategies: plain (direct) and serviced (transactional),
    created lazily and swapped for remote clients when endpoint topics are
    configured
  - channel bootstrap: one-time transport registration shared by all calls
  - remote client: request/reply envelopes over any Watermill transport,
    matched by correlation ID on a per-process reply topic

## Host (host.go, middleware.go, callstats.go, introspect.go)

The Host struct is the server side of a portal channel:
  - Watermill router subscribed to the configured endpoint topics
  - middleware chain (correlation ID, logging, tracing, metrics, recoverer)
  - per-endpoint call stats with latency percentiles, throughput, error
    breakdown, and resource sampling
  - introspection HTTP API for endpoints and registered types

## Wire Protocol (envelope/, codec.go, types.go)

Requests and responses travel as CloudEvents v1.0 envelopes with "dp_"
extension attributes. Payloads are sonic-encoded JSON or binary protobuf;
the type registry materializes results as fresh instances.

## Identity (identity.go)

Caller identity travels with the call context. With Authentication set to
"Windows" the portal forwards the host-managed sentinel instead, and the
serving process answers with its own credentials.

## Transactions (txhost.go)

The TransactionHost interface wraps serviced handler execution;
SQLTransactionHost provides the database/sql implementation.

## Change Notifications (notifier.go, change_handlers.go, notify/)

After successful mutating operations the Host can publish change envelopes
to a notifications topic, with typed subscription helpers and optional
outbox persistence.

# Sub-packages

  - config/: portal and transport configuration with validation
  - envelope/: CloudEvents envelope with portal extensions
  - errors/: sentinel errors and the portal error taxonomy
  - ids/: ULID generation for envelope and correlation IDs
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: message metadata utilities
  - notify/: typed change notification handlers
  - transport/: pub/sub transport implementations (Kafka, RabbitMQ, AWS, NATS, etc.)

# Usage Example

	cfg := &portalflow.Config{
		PubSubSystem:   "kafka",
		KafkaBrokers:   []string{"localhost:9092"},
		PortalServer:   "portal.requests",
		MetricsEnabled: true,
		MetricsPort:    9090,
	}

	portal := portalflow.NewPortal(cfg, logger, portalflow.PortalDependencies{})
	portal.RegisterTypes(&Customer{}, CustomerCriteria{})

	obj, err := portal.Fetch(ctx, CustomerCriteria{ID: 42})
*/
package runtime
