package runtime

import (
	"context"

	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
)

// Strategy locations reported in metrics, hooks, and spans.
const (
	LocationLocal  = "local"
	LocationRemote = "remote"
)

// Strategy kinds reported in metrics, hooks, and spans.
const (
	StrategyPlain    = "plain"
	StrategyServiced = "serviced"
)

// strategy executes a resolved portal handler, either in-process or across
// the portal channel. The router never needs to know which is active.
type strategy interface {
	Execute(ctx context.Context, desc handlerDescriptor, criteria Criteria, identity Identity) (any, error)
	Kind() string
	Location() string
}

// plainStrategy invokes handlers directly, with no transactional wrapper.
type plainStrategy struct {
	logger loggingpkg.ServiceLogger
}

func newPlainStrategy(logger loggingpkg.ServiceLogger) *plainStrategy {
	return &plainStrategy{logger: logger}
}

func (s *plainStrategy) Kind() string     { return StrategyPlain }
func (s *plainStrategy) Location() string { return LocationLocal }

func (s *plainStrategy) Execute(ctx context.Context, desc handlerDescriptor, criteria Criteria, identity Identity) (any, error) {
	return desc.invoke(ctx, criteria, identity)
}

// servicedStrategy invokes handlers inside the transaction host so any
// nested resource operations commit or roll back atomically.
type servicedStrategy struct {
	tx     TransactionHost
	logger loggingpkg.ServiceLogger
}

func newServicedStrategy(tx TransactionHost, logger loggingpkg.ServiceLogger) *servicedStrategy {
	return &servicedStrategy{tx: tx, logger: logger}
}

func (s *servicedStrategy) Kind() string     { return StrategyServiced }
func (s *servicedStrategy) Location() string { return LocationLocal }

func (s *servicedStrategy) Execute(ctx context.Context, desc handlerDescriptor, criteria Criteria, identity Identity) (any, error) {
	if s.tx == nil {
		return nil, errspkg.ErrTransactionHost
	}

	var result any
	err := s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		value, err := desc.invoke(txCtx, criteria, identity)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
