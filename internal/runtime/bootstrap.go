package runtime

import (
	"context"

	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	transportpkg "github.com/drblury/portalflow/internal/runtime/transport"
)

// ensureBootstrap performs the one-time channel registration. All callers
// share a single attempt; a failure is cached and returned to every
// subsequent call.
func (p *Portal) ensureBootstrap(ctx context.Context) error {
	p.bootOnce.Do(func() {
		p.bootErr = p.bootstrap(ctx)
	})
	return p.bootErr
}

// bootstrap builds the portal channel when any remote endpoint is
// configured. With both endpoints empty the portal stays fully in-process
// and no transport is touched.
func (p *Portal) bootstrap(ctx context.Context) error {
	if !p.Conf.Remote() {
		p.Logger.Debug("Portal running in-process, no channel registered", nil)
		return nil
	}

	factory := p.deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}

	channel, err := factory.Build(ctx, p.Conf, loggingpkg.NewWatermillAdapter(p.Logger))
	if err != nil {
		return errspkg.NewBootstrapFailure(err)
	}

	p.channel = channel
	p.channelUp = true

	p.Logger.Info("Portal channel registered", loggingpkg.LogFields{
		"transport":              p.Conf.PubSubSystem,
		"portal_server":          p.Conf.PortalServer,
		"serviced_portal_server": p.Conf.ServicedPortalServer,
	})

	return nil
}

// strategyFor returns the execution strategy for the handler's transactional
// marker, creating it on first use. Strategy construction implies bootstrap:
// the first portal call of either kind pays the channel registration cost.
func (p *Portal) strategyFor(ctx context.Context, transactional bool) (strategy, error) {
	if err := p.ensureBootstrap(ctx); err != nil {
		return nil, err
	}

	if transactional {
		p.servicedOnce.Do(func() {
			p.serviced, p.servicedErr = p.buildServicedStrategy()
		})
		return p.serviced, p.servicedErr
	}

	p.plainOnce.Do(func() {
		p.plain, p.plainErr = p.buildPlainStrategy()
	})
	return p.plain, p.plainErr
}

func (p *Portal) buildPlainStrategy() (strategy, error) {
	if p.Conf.PortalServer == "" {
		return newPlainStrategy(p.Logger), nil
	}

	client, err := newRemoteClient(StrategyPlain, p.Conf.PortalServer, p.Conf.Source(), p.channel.Publisher, p.channel.Subscriber, p.types, p.Logger)
	if err != nil {
		return nil, errspkg.NewBootstrapFailure(err)
	}
	p.addCloser(client)
	return client, nil
}

func (p *Portal) buildServicedStrategy() (strategy, error) {
	if p.Conf.ServicedPortalServer == "" {
		return newServicedStrategy(p.deps.TransactionHost, p.Logger), nil
	}

	client, err := newRemoteClient(StrategyServiced, p.Conf.ServicedPortalServer, p.Conf.Source(), p.channel.Publisher, p.channel.Subscriber, p.types, p.Logger)
	if err != nil {
		return nil, errspkg.NewBootstrapFailure(err)
	}
	p.addCloser(client)
	return client, nil
}

// addCloser records a strategy client for Close. The plain and serviced
// builders run under separate once guards, so concurrent first use of both
// strategies appends from two goroutines.
func (p *Portal) addCloser(closer interface{ Close() error }) {
	p.closersMu.Lock()
	p.closers = append(p.closers, closer)
	p.closersMu.Unlock()
}
