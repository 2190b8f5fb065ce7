package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/portalflow/internal/runtime/config"
	newtransport "github.com/drblury/portalflow/transport"

	// Import all transport packages to register them.
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

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Factory abstracts how Portalflow initialises message transports.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// DefaultFactory returns the built-in transport factory that uses the
// modular transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	// Use the new transport registry to build the transport.
	t, err := newtransport.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Publisher:  t.Publisher,
		Subscriber: t.Subscriber,
	}, nil
}
