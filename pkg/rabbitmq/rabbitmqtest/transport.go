// Package rabbitmqtest provides an in-memory rabbitmq.Transport for tests.
package rabbitmqtest

import (
	"context"
	"sort"
	"sync"

	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

// Published records one Publish call.
type Published struct {
	Destination string
	Payload     []byte
	Headers     map[string]string
}

// Transport routes Emit calls to matching subscriptions using exchange-style wildcards.
type Transport struct {
	mu           sync.Mutex
	subs         map[*rabbitmq.Subscription]struct{}
	published    []Published
	disconnected bool
	seq          uint64

	// SubscribeErr, when set, is consulted before every Subscribe.
	SubscribeErr func(topic string) error
}

var _ rabbitmq.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{subs: make(map[*rabbitmq.Subscription]struct{})}
}

func (t *Transport) Subscribe(_ context.Context, topic string) (*rabbitmq.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disconnected {
		return nil, rabbitmq.ErrNotConnected
	}
	if t.SubscribeErr != nil {
		if err := t.SubscribeErr(topic); err != nil {
			return nil, err
		}
	}
	var sub *rabbitmq.Subscription
	sub = rabbitmq.NewSubscription(topic, 64, func(context.Context) error {
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
		return nil
	})
	t.subs[sub] = struct{}{}
	return sub, nil
}

func (t *Transport) Publish(_ context.Context, destination string, payload []byte, headers map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disconnected {
		return rabbitmq.ErrNotConnected
	}
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	t.published = append(t.published, Published{Destination: destination, Payload: append([]byte(nil), payload...), Headers: h})
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.disconnected
}

func (t *Transport) SetConnected(ok bool) {
	t.mu.Lock()
	t.disconnected = !ok
	t.mu.Unlock()
}

func (t *Transport) Close() { t.SetConnected(false) }

// Emit delivers payload on topic to every matching live subscription and returns how many received it.
func (t *Transport) Emit(topic string, payload []byte) int {
	return t.EmitWithHeaders(topic, payload, nil)
}

func (t *Transport) EmitWithHeaders(topic string, payload []byte, headers map[string]string) int {
	t.mu.Lock()
	t.seq++
	f := rabbitmq.Frame{Topic: topic, Payload: payload, Headers: headers, Seq: t.seq}
	targets := make([]*rabbitmq.Subscription, 0, len(t.subs))
	for s := range t.subs {
		if rabbitmq.Match(s.Topic(), topic) {
			targets = append(targets, s)
		}
	}
	t.mu.Unlock()

	n := 0
	for _, s := range targets {
		if s.Deliver(f) {
			n++
		}
	}
	return n
}

// Active returns the sorted topics of live subscriptions.
func (t *Transport) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subs))
	for s := range t.subs {
		out = append(out, s.Topic())
	}
	sort.Strings(out)
	return out
}

func (t *Transport) Published() []Published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Published(nil), t.published...)
}
