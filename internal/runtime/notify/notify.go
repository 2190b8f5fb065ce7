package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"

	envelopepkg "github.com/drblury/portalflow/internal/runtime/envelope"
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/portalflow/internal/runtime/metadata"
)

// MetadataKeyCorrelationID tracks related messages across services.
const MetadataKeyCorrelationID = "correlation_id"

// ChangeEvent exposes one decoded change notification to a typed handler.
type ChangeEvent[T any] struct {
	// Operation is the portal operation that produced the change
	// ("create", "update", or "delete").
	Operation string

	// ObjectType is the registered type name of the changed object.
	ObjectType string

	// Object is the changed object. Delete notifications carry no payload,
	// so Object stays at its zero value.
	Object T

	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// CloneMetadata copies the current metadata map so handlers can mutate
// headers safely.
func (e ChangeEvent[T]) CloneMetadata() metadatapkg.Metadata {
	return e.Metadata.Clone()
}

// CorrelationID returns the correlation ID from metadata, if present.
func (e ChangeEvent[T]) CorrelationID() string {
	return e.Metadata[MetadataKeyCorrelationID]
}

// ChangeHandler processes one change notification for objects of type T.
type ChangeHandler[T any] func(ctx context.Context, event ChangeEvent[T]) error

// BuildChangeHandler converts a typed change handler into a Watermill
// handler. Notifications for other object types are acked and skipped, so
// several typed handlers can share one notifications topic. The returned
// string is the object type name the handler is bound to.
func BuildChangeHandler[T any](handler ChangeHandler[T], logger loggingpkg.ServiceLogger) (message.NoPublishHandlerFunc, string, error) {
	if handler == nil {
		return nil, "", errspkg.ErrChangeHandlerNeeded
	}

	factory, err := prototypeFactory[T]()
	if err != nil {
		return nil, "", err
	}
	typeName := fmt.Sprintf("%T", factory())

	return func(msg *message.Message) error {
		var env envelopepkg.Envelope
		if err := jsoncodec.Unmarshal(msg.Payload, &env); err != nil {
			return fmt.Errorf("failed to unmarshal change envelope: %w", err)
		}
		if env.Type != envelopepkg.TypeChange || env.ObjectType() != typeName {
			return nil
		}

		event := ChangeEvent[T]{
			Operation:  env.Operation(),
			ObjectType: env.ObjectType(),
			Metadata:   metadatapkg.FromWatermill(msg.Metadata),
			Logger:     logger,
		}

		if env.Data != nil || env.DataBase64 != nil {
			typed := factory()
			if err := decodeInto(env, typed); err != nil {
				return err
			}
			event.Object = typed
		}

		return handler(msg.Context(), event)
	}, typeName, nil
}

func prototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errspkg.ErrChangePointerNeeded
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrChangePointerNeeded
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}

// decodeInto fills out from the envelope payload: binary protobuf when the
// envelope carries data_base64, sonic JSON otherwise.
func decodeInto(env envelopepkg.Envelope, out any) error {
	if env.DataBase64 != nil {
		msg, ok := out.(proto.Message)
		if !ok {
			return fmt.Errorf("type %T does not accept protobuf payloads", out)
		}
		raw, err := base64.StdEncoding.DecodeString(*env.DataBase64)
		if err != nil {
			return fmt.Errorf("decode protobuf payload: %w", err)
		}
		if err := proto.Unmarshal(raw, msg); err != nil {
			return fmt.Errorf("unmarshal protobuf payload: %w", err)
		}
		return nil
	}

	if err := jsoncodec.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unmarshal change payload into %T: %w", out, err)
	}
	return nil
}
