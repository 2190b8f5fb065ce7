package runtime

import (
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	notifypkg "github.com/drblury/portalflow/internal/runtime/notify"
)

// RegisterChangeHandler subscribes a typed change handler to the host's
// notifications topic. T must be the pointer type the changed objects were
// registered with.
func RegisterChangeHandler[T any](h *Host, name string, handler notifypkg.ChangeHandler[T]) error {
	if h == nil {
		return errspkg.ErrHostRequired
	}
	if h.Conf.NotificationsTopic == "" {
		return errspkg.ErrNotificationsTopic
	}

	wrapped, typeName, err := notifypkg.BuildChangeHandler(handler, h.Logger)
	if err != nil {
		return err
	}

	if name == "" {
		name = typeName + "-ChangeHandler"
	}

	h.router.AddNoPublisherHandler(
		name,
		h.Conf.NotificationsTopic,
		h.subscriber,
		wrapped,
	)

	return nil
}
