package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	envelopepkg "github.com/drblury/portalflow/internal/runtime/envelope"
	errspkg "github.com/drblury/portalflow/internal/runtime/errors"
	idspkg "github.com/drblury/portalflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/portalflow/internal/runtime/metadata"
)

// MetadataKeyCorrelationID carries the request correlation identifier in
// message metadata, alongside the envelope extension.
const MetadataKeyCorrelationID = "correlation_id"

// remoteClient executes portal handlers across the channel registered by the
// bootstrap: requests are published to the endpoint's topic, responses come
// back on a per-client reply topic and are matched by correlation ID.
type remoteClient struct {
	kind       string
	topic      string
	replyTopic string
	source     string

	publisher  message.Publisher
	subscriber message.Subscriber
	types      *typeRegistry
	logger     loggingpkg.ServiceLogger

	mu      sync.Mutex
	pending map[string]chan envelopepkg.Envelope

	cancel context.CancelFunc
}

// newRemoteClient subscribes to the reply topic and starts the reply pump.
// The subscription lives until Close; call contexts only bound individual
// request waits.
func newRemoteClient(kind, topic, source string, publisher message.Publisher, subscriber message.Subscriber, types *typeRegistry, logger loggingpkg.ServiceLogger) (*remoteClient, error) {
	pumpCtx, cancel := context.WithCancel(context.Background())

	client := &remoteClient{
		kind:       kind,
		topic:      topic,
		replyTopic: replyTopicFor(topic),
		source:     source,
		publisher:  publisher,
		subscriber: subscriber,
		types:      types,
		logger:     logger,
		pending:    make(map[string]chan envelopepkg.Envelope),
		cancel:     cancel,
	}

	replies, err := subscriber.Subscribe(pumpCtx, client.replyTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to reply topic %s: %w", client.replyTopic, err)
	}

	go client.pumpReplies(replies)

	return client, nil
}

// replyTopicFor derives a per-process reply topic from the request topic.
// The ULID suffix keeps concurrent portal clients from stealing each other's
// responses on shared brokers.
func replyTopicFor(topic string) string {
	base := strings.TrimSuffix(topic, "/")
	return base + ".replies." + strings.ToLower(idspkg.CreateULID())
}

func (c *remoteClient) Kind() string     { return c.kind }
func (c *remoteClient) Location() string { return LocationRemote }

func (c *remoteClient) Execute(ctx context.Context, desc handlerDescriptor, criteria Criteria, identity Identity) (any, error) {
	env, err := c.buildRequest(ctx, desc, criteria, identity)
	if err != nil {
		return nil, errspkg.NewTransportFailure("encode", err)
	}

	raw, err := jsoncodec.Marshal(env)
	if err != nil {
		return nil, errspkg.NewTransportFailure("encode", err)
	}

	wait := c.register(env.ID)
	defer c.unregister(env.ID)

	msg := message.NewMessage(env.ID, raw)
	msg.Metadata = metadatapkg.ToWatermill(metadatapkg.New(MetadataKeyCorrelationID, env.ID))
	msg.SetContext(ctx)

	if err := c.publisher.Publish(c.topic, msg); err != nil {
		return nil, errspkg.NewTransportFailure("publish", err)
	}

	select {
	case <-ctx.Done():
		return nil, errspkg.NewTransportFailure("reply", ctx.Err())
	case response := <-wait:
		return c.decodeResponse(response, desc)
	}
}

func (c *remoteClient) buildRequest(ctx context.Context, desc handlerDescriptor, criteria Criteria, identity Identity) (envelopepkg.Envelope, error) {
	env := envelopepkg.NewRequest(string(desc.op), c.source).
		SetObjectType(TypeName(desc.target)).
		SetTransactional(desc.transactional).
		SetReplyTo(c.replyTopic)

	if criteria != nil {
		env = env.SetCriteriaType(TypeName(criteria))
	}

	// Update ships the object itself; the other operations ship criteria.
	payload := any(criteria)
	if desc.op == OperationUpdate {
		payload = desc.target
	}
	env, err := encodePayload(env, payload)
	if err != nil {
		return env, err
	}

	env, err = env.SetPrincipal(identity, identity.HostManaged)
	if err != nil {
		return env, err
	}

	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		env = env.SetTracing(span.TraceID().String(), span.SpanID().String())
	}

	return env, nil
}

func (c *remoteClient) decodeResponse(env envelopepkg.Envelope, desc handlerDescriptor) (any, error) {
	if err := env.DecodeError(); err != nil {
		return nil, err
	}
	if desc.op == OperationDelete {
		return nil, nil
	}
	result, err := decodePayload(env, c.types)
	if err != nil {
		return nil, errspkg.NewTransportFailure("decode", err)
	}
	return result, nil
}

func (c *remoteClient) register(correlationID string) chan envelopepkg.Envelope {
	wait := make(chan envelopepkg.Envelope, 1)
	c.mu.Lock()
	c.pending[correlationID] = wait
	c.mu.Unlock()
	return wait
}

func (c *remoteClient) unregister(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

// pumpReplies routes response envelopes to their waiting calls. Responses
// with no waiter (late replies after a cancelled call) are acked and logged.
func (c *remoteClient) pumpReplies(replies <-chan *message.Message) {
	for msg := range replies {
		var env envelopepkg.Envelope
		if err := jsoncodec.Unmarshal(msg.Payload, &env); err != nil {
			c.logger.Error("Dropping unparsable portal response", err, loggingpkg.LogFields{
				"reply_topic":  c.replyTopic,
				"message_uuid": msg.UUID,
			})
			msg.Ack()
			continue
		}

		c.mu.Lock()
		wait, ok := c.pending[env.CorrelationID()]
		c.mu.Unlock()

		if ok {
			select {
			case wait <- env:
			default:
				// Duplicate reply for a correlation ID whose waiter already
				// has one buffered; dropping keeps the pump from stalling.
				c.logger.Debug("Dropping duplicate portal response", loggingpkg.LogFields{
					"correlation_id": env.CorrelationID(),
					"reply_topic":    c.replyTopic,
				})
			}
		} else {
			c.logger.Debug("No waiter for portal response", loggingpkg.LogFields{
				"correlation_id": env.CorrelationID(),
				"reply_topic":    c.replyTopic,
			})
		}
		msg.Ack()
	}
}

// Close stops the reply pump subscription.
func (c *remoteClient) Close() error {
	c.cancel()
	return nil
}
