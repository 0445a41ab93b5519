package monitor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/topics"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

type Phase int

const (
	NoSelection Phase = iota
	SelectionPending
	Selected
)

func (p Phase) String() string {
	switch p {
	case SelectionPending:
		return "pending"
	case Selected:
		return "selected"
	}
	return "none"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type SelectionState struct {
	Phase      Phase  `json:"phase"`
	LiftID     string `json:"liftId,omitempty"`
	Generation uint64 `json:"generation"`
}

// Inbound is a frame as handed to the view loop. Generation is the selection set the
// frame was received on; overview frames carry no generation.
type Inbound struct {
	Generation uint64
	Overview   bool
	Frame      rabbitmq.Frame
}

// SubscriptionManager owns the subscriptions of the selected lift and the permanent
// overview subscription. Its methods are called from the view loop only; the
// forwarding goroutines just move frames into Inbox.
type SubscriptionManager struct {
	transport rabbitmq.ISubscriber
	logger    *zap.Logger
	metrics   *Metrics
	onReset   func(liftID string)

	inbox chan Inbound
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	state    SelectionState
	gen      uint64
	set      []*rabbitmq.Subscription
	overview *rabbitmq.Subscription
}

// NewSubscriptionManager builds a manager; onReset is called with the new lift id (or "")
// every time the selection-scoped projection has to start over.
func NewSubscriptionManager(t rabbitmq.ISubscriber, logger *zap.Logger, m *Metrics, onReset func(liftID string)) *SubscriptionManager {
	if onReset == nil {
		onReset = func(string) {}
	}
	return &SubscriptionManager{
		transport: t,
		logger:    logger,
		metrics:   m,
		onReset:   onReset,
		inbox:     make(chan Inbound, 256),
		done:      make(chan struct{}),
	}
}

func (m *SubscriptionManager) Inbox() <-chan Inbound { return m.inbox }

func (m *SubscriptionManager) State() SelectionState { return m.state }

// Live reports whether frames of generation gen still belong to the current selection.
func (m *SubscriptionManager) Live(gen uint64) bool {
	return m.state.Phase == Selected && gen == m.state.Generation
}

// ActiveTopics lists the topics of the current selection set.
func (m *SubscriptionManager) ActiveTopics() []string {
	out := make([]string, 0, len(m.set))
	for _, s := range m.set {
		out = append(out, s.Topic())
	}
	return out
}

// ActivateOverview opens the wildcard status stream. It is a no-op once active.
func (m *SubscriptionManager) ActivateOverview(ctx context.Context) error {
	if m.overview != nil {
		return nil
	}
	topic := topics.For(topics.StatusUpdate, topics.All)
	s, err := m.transport.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("overview subscription: %w", err)
	}
	m.overview = s
	m.forward(s, 0, true)
	m.logger.Info("overview subscription active", zap.String("topic", topic))
	return nil
}

// Select moves the selection to liftID. Selecting the current lift again, or "",
// clears the selection. The previous set is always fully unsubscribed, and the
// projection reset, before any subscription for the new lift is requested.
func (m *SubscriptionManager) Select(ctx context.Context, liftID string) (SelectionState, error) {
	if liftID == "" || (m.state.Phase == Selected && m.state.LiftID == liftID) {
		m.Clear(ctx)
		return m.state, nil
	}

	m.state = SelectionState{Phase: SelectionPending, LiftID: liftID, Generation: m.state.Generation}
	m.teardown(ctx)
	m.onReset(liftID)

	m.gen++
	gen := m.gen
	set := make([]*rabbitmq.Subscription, 0, len(topics.SelectionChannels))
	for _, ch := range topics.SelectionChannels {
		s, err := m.transport.Subscribe(ctx, topics.For(ch, topics.Lift(liftID)))
		if err != nil {
			for _, done := range set {
				m.unsubscribe(ctx, done)
			}
			m.state = SelectionState{Phase: NoSelection, Generation: gen}
			m.onReset("")
			m.metrics.SetSubscriptions(0)
			return m.state, fmt.Errorf("select %s: %w", liftID, err)
		}
		set = append(set, s)
	}

	m.set = set
	m.state = SelectionState{Phase: Selected, LiftID: liftID, Generation: gen}
	for _, s := range set {
		m.forward(s, gen, false)
	}
	m.metrics.SetSubscriptions(len(set))
	m.logger.Info("lift selected", zap.String("lift_id", liftID), zap.Uint64("generation", gen))
	return m.state, nil
}

// Clear tears down the selection set and leaves NoSelection.
func (m *SubscriptionManager) Clear(ctx context.Context) {
	prev := m.state.LiftID
	m.teardown(ctx)
	m.gen++
	m.state = SelectionState{Phase: NoSelection, Generation: m.gen}
	m.onReset("")
	if prev != "" {
		m.logger.Info("selection cleared", zap.String("lift_id", prev))
	}
}

// Close releases every subscription, the overview one included, and stops forwarding.
func (m *SubscriptionManager) Close(ctx context.Context) {
	m.Clear(ctx)
	if m.overview != nil {
		m.unsubscribe(ctx, m.overview)
		m.overview = nil
	}
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *SubscriptionManager) teardown(ctx context.Context) {
	for _, s := range m.set {
		m.unsubscribe(ctx, s)
	}
	m.set = nil
	m.metrics.SetSubscriptions(0)
}

func (m *SubscriptionManager) unsubscribe(ctx context.Context, s *rabbitmq.Subscription) {
	if err := s.Unsubscribe(ctx); err != nil {
		m.logger.Warn("unsubscribe failed", zap.String("topic", s.Topic()), zap.Error(err))
	}
}

func (m *SubscriptionManager) forward(s *rabbitmq.Subscription, gen uint64, overview bool) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for f := range s.Frames() {
			select {
			case m.inbox <- Inbound{Generation: gen, Overview: overview, Frame: f}:
			case <-m.done:
				return
			}
		}
	}()
}
