// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/portalflow/transport/aws"
	_ "github.com/drblury/portalflow/transport/channel"
	_ "github.com/drblury/portalflow/transport/http"
	_ "github.com/drblury/portalflow/transport/io"
	_ "github.com/drblury/portalflow/transport/jetstream"
	_ "github.com/drblury/portalflow/transport/kafka"
	_ "github.com/drblury/portalflow/transport/nats"
	_ "github.com/drblury/portalflow/transport/postgres"
	_ "github.com/drblury/portalflow/transport/rabbitmq"
	_ "github.com/drblury/portalflow/transport/sqlite"
)
