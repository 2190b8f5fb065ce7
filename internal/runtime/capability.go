package runtime

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
)

// Operation identifies one of the four portal operations.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationFetch  Operation = "fetch"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Criteria describes what to create, fetch, or delete. PortalTarget returns a
// fresh instance of the domain type whose handler methods serve this
// criteria, binding the criteria to its owning type the way a nested criteria
// class would.
type Criteria interface {
	PortalTarget() any
}

// Creator is implemented by domain types that can be created through the
// portal. The returned value is the fully populated new object.
type Creator interface {
	DataPortalCreate(ctx context.Context, criteria Criteria, identity Identity) (any, error)
}

// Fetcher is implemented by domain types that can be fetched through the
// portal. The returned value is populated from the backend.
type Fetcher interface {
	DataPortalFetch(ctx context.Context, criteria Criteria, identity Identity) (any, error)
}

// Updater is implemented by domain types that can be updated through the
// portal. The receiver is the object being saved; the returned value is the
// reference the caller must keep, which may be a different instance after a
// remote round trip.
type Updater interface {
	DataPortalUpdate(ctx context.Context, identity Identity) (any, error)
}

// Deleter is implemented by domain types that support immediate deletion
// through the portal.
type Deleter interface {
	DataPortalDelete(ctx context.Context, criteria Criteria, identity Identity) error
}

// TransactionalMarker declares which portal operations of a domain type must
// run inside a transactional context. Types without the marker run every
// operation on the plain strategy. The marker is queried fresh on every call.
type TransactionalMarker interface {
	Transactional(op Operation) bool
}

// TransactionalAll marks every portal operation of the embedding type as
// transactional.
type TransactionalAll struct{}

func (TransactionalAll) Transactional(Operation) bool { return true }

// handlerDescriptor is a resolved portal handler: the target instance, the
// operation, and its transactional requirement.
type handlerDescriptor struct {
	target        any
	op            Operation
	transactional bool
}

// findHandler resolves the handler for op on target. Interface satisfaction
// follows Go embedding, so a handler declared on an embedded base type is
// found for a derived target. Fails with MissingHandlerError before any
// backend or network activity.
func findHandler(target any, op Operation) (handlerDescriptor, error) {
	if target == nil {
		return handlerDescriptor{}, errspkg.ErrTargetRequired
	}

	var ok bool
	switch op {
	case OperationCreate:
		_, ok = target.(Creator)
	case OperationFetch:
		_, ok = target.(Fetcher)
	case OperationUpdate:
		_, ok = target.(Updater)
	case OperationDelete:
		_, ok = target.(Deleter)
	}
	if !ok {
		return handlerDescriptor{}, errspkg.NewMissingHandlerError(fmt.Sprintf("%T", target), string(op))
	}

	return handlerDescriptor{
		target:        target,
		op:            op,
		transactional: isTransactional(target, op),
	}, nil
}

// isTransactional queries the declarative marker on target. Types lacking
// the marker answer false; the query never fails.
func isTransactional(target any, op Operation) bool {
	marker, ok := target.(TransactionalMarker)
	if !ok {
		return false
	}
	return marker.Transactional(op)
}

// invoke runs the resolved handler in-process. For update operations the
// descriptor target is the object being saved and criteria is nil.
func (h handlerDescriptor) invoke(ctx context.Context, criteria Criteria, identity Identity) (any, error) {
	switch h.op {
	case OperationCreate:
		return h.target.(Creator).DataPortalCreate(ctx, criteria, identity)
	case OperationFetch:
		return h.target.(Fetcher).DataPortalFetch(ctx, criteria, identity)
	case OperationUpdate:
		return h.target.(Updater).DataPortalUpdate(ctx, identity)
	case OperationDelete:
		return nil, h.target.(Deleter).DataPortalDelete(ctx, criteria, identity)
	}
	return nil, errspkg.NewMissingHandlerError(fmt.Sprintf("%T", h.target), string(h.op))
}
