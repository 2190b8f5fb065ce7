package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	configpkg "github.com/drblury/portalflow/internal/runtime/config"
	loggingpkg "github.com/drblury/portalflow/internal/runtime/logging"
	transportpkg "github.com/drblury/portalflow/internal/runtime/transport"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type testPublisher struct {
	mu        sync.Mutex
	published []string
	messages  map[string][]*message.Message
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, topic)
	if p.messages == nil {
		p.messages = make(map[string][]*message.Message)
	}
	p.messages[topic] = append(p.messages[topic], messages...)
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]string, len(p.published))
	copy(clone, p.published)
	return clone
}

func (p *testPublisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]*message.Message, len(p.messages[topic]))
	copy(clone, p.messages[topic])
	return clone
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

type testOutbox struct {
	mu      sync.Mutex
	records []outboxRecord
	err     error
}

type outboxRecord struct {
	eventType string
	uuid      string
	payload   string
}

func (o *testOutbox) StoreOutgoingMessage(ctx context.Context, eventType, uuid, payload string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.records = append(o.records, outboxRecord{eventType: eventType, uuid: uuid, payload: payload})
	return nil
}

func (o *testOutbox) Records() []outboxRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	clone := make([]outboxRecord, len(o.records))
	copy(clone, o.records)
	return clone
}

// sharedChannelFactory hands the same in-memory pub/sub to every Build call
// so a Portal and a Host in one test talk over a common channel. Persistence
// keeps messages published before the router finishes subscribing.
type sharedChannelFactory struct {
	once      sync.Once
	transport transportpkg.Transport
}

func (f *sharedChannelFactory) Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
	f.once.Do(func() {
		pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)
		f.transport = transportpkg.Transport{Publisher: pubSub, Subscriber: pubSub}
	})
	return f.transport, nil
}

// failingFactory simulates a broker that cannot be reached.
type failingFactory struct {
	mu     sync.Mutex
	builds int
}

func (f *failingFactory) Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
	f.mu.Lock()
	f.builds++
	f.mu.Unlock()
	return transportpkg.Transport{}, errors.New("broker unreachable")
}

func (f *failingFactory) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

// recordingTxHost counts transactional scopes and marks the handler context.
type recordingTxHost struct {
	mu    sync.Mutex
	calls int
	err   error
}

type txMarkerKey struct{}

func (h *recordingTxHost) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	return fn(context.WithValue(ctx, txMarkerKey{}, true))
}

func (h *recordingTxHost) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func inTransaction(ctx context.Context) bool {
	marked, _ := ctx.Value(txMarkerKey{}).(bool)
	return marked
}

// Domain fixtures shared by the portal, host, and strategy tests.

type customerCriteria struct {
	ID int `json:"id"`
}

func (customerCriteria) PortalTarget() any { return &testCustomer{} }

type testCustomer struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

func (c *testCustomer) DataPortalCreate(_ context.Context, criteria Criteria, _ Identity) (any, error) {
	typed := criteria.(customerCriteria)
	return &testCustomer{ID: typed.ID, Name: "new customer"}, nil
}

func (c *testCustomer) DataPortalFetch(_ context.Context, criteria Criteria, identity Identity) (any, error) {
	typed := criteria.(customerCriteria)
	if typed.ID < 0 {
		return nil, errors.New("no such customer")
	}
	name := "customer"
	if identity.HostManaged {
		name = "host customer"
	} else if identity.Name != "" {
		name = identity.Name + " customer"
	}
	return &testCustomer{ID: typed.ID, Name: name}, nil
}

func (c *testCustomer) DataPortalUpdate(_ context.Context, _ Identity) (any, error) {
	updated := *c
	updated.Name = c.Name + " updated"
	return &updated, nil
}

func (c *testCustomer) DataPortalDelete(_ context.Context, criteria Criteria, _ Identity) error {
	typed := criteria.(customerCriteria)
	if typed.ID < 0 {
		return errors.New("no such customer")
	}
	return nil
}

// testOrder is transactional for every operation and records whether its
// handler observed the transaction scope.
type orderCriteria struct {
	ID int `json:"id"`
}

func (orderCriteria) PortalTarget() any { return &testOrder{} }

type testOrder struct {
	TransactionalAll `json:"-"`

	ID       int  `json:"id"`
	SawTx    bool `json:"saw_tx"`
	Shipped  bool `json:"shipped"`
	failNext bool
}

func (o *testOrder) DataPortalFetch(ctx context.Context, criteria Criteria, _ Identity) (any, error) {
	typed := criteria.(orderCriteria)
	return &testOrder{ID: typed.ID, SawTx: inTransaction(ctx)}, nil
}

func (o *testOrder) DataPortalUpdate(ctx context.Context, _ Identity) (any, error) {
	if o.failNext {
		return nil, errors.New("order update rejected")
	}
	updated := testOrder{ID: o.ID, SawTx: inTransaction(ctx), Shipped: true}
	return &updated, nil
}

// readOnlyReport has no portal handlers at all.
type reportCriteria struct{}

func (reportCriteria) PortalTarget() any { return &readOnlyReport{} }

type readOnlyReport struct{}
