package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	envelopepkg "github.com/drblury/portalflow/internal/runtime/envelope"
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/portalflow/internal/runtime/metadata"
)

// ChangeNotifier publishes change envelopes after successful mutating portal
// operations so other processes can invalidate caches or refresh views.
type ChangeNotifier struct {
	publisher message.Publisher
	topic     string
	source    string
	outbox    OutboxStore
	logger    loggingpkg.ServiceLogger
}

// NewChangeNotifier creates a notifier publishing to the given topic. An
// optional outbox persists notifications before they are published.
func NewChangeNotifier(publisher message.Publisher, topic, source string, outbox OutboxStore, logger loggingpkg.ServiceLogger) *ChangeNotifier {
	return &ChangeNotifier{
		publisher: publisher,
		topic:     topic,
		source:    source,
		outbox:    outbox,
		logger:    logger,
	}
}

// NotifyChange publishes a change envelope for the completed operation.
// Notification failures are logged, never surfaced to the portal caller:
// the operation itself already succeeded.
func (n *ChangeNotifier) NotifyChange(ctx context.Context, op Operation, objectType string, result any) {
	if err := n.publishChange(ctx, op, objectType, result); err != nil {
		n.logger.Error("Failed to publish change notification", err, loggingpkg.LogFields{
			"topic":       n.topic,
			"operation":   op,
			"object_type": objectType,
		})
	}
}

func (n *ChangeNotifier) publishChange(ctx context.Context, op Operation, objectType string, result any) error {
	if n.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if n.topic == "" {
		return errspkg.ErrNotificationsTopic
	}

	env := envelopepkg.New(envelopepkg.TypeChange, n.source).
		WithExtension(envelopepkg.ExtOperation, string(op)).
		WithExtension(envelopepkg.ExtObjectType, objectType)

	if result != nil && op != OperationDelete {
		encoded, err := encodePayload(env, result)
		if err != nil {
			return err
		}
		env = encoded
	}

	raw, err := jsoncodec.Marshal(env)
	if err != nil {
		return err
	}

	if n.outbox != nil {
		if err := n.outbox.StoreOutgoingMessage(ctx, objectType, env.ID, string(raw)); err != nil {
			return err
		}
	}

	msg := message.NewMessage(env.ID, raw)
	msg.Metadata = metadatapkg.ToWatermill(metadatapkg.New(MetadataKeyCorrelationID, env.ID))
	if ctx != nil {
		msg.SetContext(ctx)
	}

	return n.publisher.Publish(n.topic, msg)
}
