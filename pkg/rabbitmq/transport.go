package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Transport is the single broker connection everything else is built on.
type Transport interface {
	ISubscriber
	IPublisher
	Connected() bool
	Close()
}

// MQTTTransport multiplexes any number of Subscriptions over one paho client.
// Subscriptions sharing a filter share one broker subscription.
type MQTTTransport struct {
	client mqtt.Client
	logger *zap.Logger
	buffer int
	onDrop func(topic string)

	seq atomic.Uint64

	mu     sync.Mutex
	routes map[string]map[*Subscription]struct{} // mqtt filter -> streams
}

type Option func(*MQTTTransport)

// WithBuffer sets the per-subscription frame buffer.
func WithBuffer(n int) Option { return func(t *MQTTTransport) { t.buffer = n } }

// WithDropHook is called with the subscription topic whenever a frame is dropped.
func WithDropHook(fn func(topic string)) Option { return func(t *MQTTTransport) { t.onDrop = fn } }

var _ Transport = (*MQTTTransport)(nil)

// Dial connects to the broker and re-establishes every live subscription after each
// reconnect (the session is clean, so the broker forgets them).
func Dial(ctx context.Context, cfg *RabbitMQConfig, logger *zap.Logger, opts ...Option) (*MQTTTransport, error) {
	t := &MQTTTransport{
		logger: logger,
		buffer: 256,
		routes: make(map[string]map[*Subscription]struct{}),
	}
	for _, o := range opts {
		o(t)
	}

	c := *cfg
	userOnConnect := c.OnConnect
	var connected atomic.Bool
	c.OnConnect = func() {
		if connected.Swap(true) {
			t.resubscribe()
		}
		if userOnConnect != nil {
			userOnConnect()
		}
	}

	client, err := NewRabbitMQConn(ctx, &c, logger)
	if err != nil {
		return nil, err
	}
	t.client = client
	return t, nil
}

func (t *MQTTTransport) Connected() bool {
	return t.client != nil && t.client.IsConnectionOpen()
}

func (t *MQTTTransport) Close() {
	if t.client != nil {
		CloseRabbitMQConn(t.client, t.logger)
	}
}

// Subscribe opens an independent stream for topic (exchange-style, wildcards allowed).
func (t *MQTTTransport) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if !t.Connected() {
		return nil, ErrNotConnected
	}
	filter := ToMQTT(topic)

	sub := NewSubscription(topic, t.buffer, func(ctx context.Context) error {
		return t.release(ctx, filter)
	})

	t.mu.Lock()
	set, exists := t.routes[filter]
	if !exists {
		set = make(map[*Subscription]struct{})
		t.routes[filter] = set
	}
	set[sub] = struct{}{}
	t.mu.Unlock()

	if exists {
		return sub, nil
	}

	if err := wait(ctx, t.client.Subscribe(filter, 0, t.dispatch(filter))); err != nil {
		t.mu.Lock()
		delete(t.routes, filter)
		t.mu.Unlock()
		sub.shut()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	t.logger.Debug("subscribed", zap.String("topic", topic))
	return sub, nil
}

func (t *MQTTTransport) dispatch(filter string) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		f := Frame{
			Topic:   FromMQTT(m.Topic()),
			Payload: m.Payload(),
			Seq:     t.seq.Add(1),
		}
		t.mu.Lock()
		targets := make([]*Subscription, 0, len(t.routes[filter]))
		for s := range t.routes[filter] {
			targets = append(targets, s)
		}
		t.mu.Unlock()

		for _, s := range targets {
			if !s.Deliver(f) && !s.Closed() {
				t.logger.Warn("frame dropped, subscriber buffer full", zap.String("topic", s.Topic()))
				if t.onDrop != nil {
					t.onDrop(s.Topic())
				}
			}
		}
	}
}

func (t *MQTTTransport) release(ctx context.Context, filter string) error {
	t.mu.Lock()
	set := t.routes[filter]
	for s := range set {
		if s.Closed() {
			delete(set, s)
		}
	}
	last := len(set) == 0
	if last {
		delete(t.routes, filter)
	}
	t.mu.Unlock()

	if !last || !t.Connected() {
		return nil
	}
	if err := wait(ctx, t.client.Unsubscribe(filter)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", FromMQTT(filter), err)
	}
	t.logger.Debug("unsubscribed", zap.String("topic", FromMQTT(filter)))
	return nil
}

func (t *MQTTTransport) resubscribe() {
	t.mu.Lock()
	filters := make([]string, 0, len(t.routes))
	for f := range t.routes {
		filters = append(filters, f)
	}
	t.mu.Unlock()

	for _, f := range filters {
		token := t.client.Subscribe(f, 0, t.dispatch(f))
		go func(filter string) {
			if token.WaitTimeout(10*time.Second) && token.Error() != nil {
				t.logger.Error("resubscribe failed", zap.String("topic", FromMQTT(filter)), zap.Error(token.Error()))
			}
		}(f)
	}
	t.logger.Info("resubscribed after reconnect", zap.Int("topics", len(filters)))
}
