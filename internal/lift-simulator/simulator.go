package lift_simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/topics"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/dedup"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

// TimestampLayout matches the readings lifts already send.
const TimestampLayout = "2006-01-02 15:04:05.000000"

const (
	OutcomeSuccessful = "successful"
	OutcomeFailed     = "failed"
)

var errUnknownCommand = errors.New("unknown command kind")

// LiftSimulator plays one lift on the broker: it broadcasts readings and status at a
// fixed interval and obeys the commands addressed to it.
type LiftSimulator struct {
	mu    sync.Mutex
	state messages.LiftStatus
	timer *time.Timer // pending stop or restart
	ctx   context.Context

	lift         model.Lift
	location     string
	restartAfter time.Duration
	generator    *DataGenerator
	publisher    rabbitmq.IPublisher
	consumer     rabbitmq.ISubscriber
	deduper      *dedup.Deduper
	logger       *zap.Logger
	now          func() time.Time
}

type Option func(*LiftSimulator)

// WithLocation names where the sensors sit; defaults to the lift name.
func WithLocation(loc string) Option { return func(s *LiftSimulator) { s.location = loc } }

// WithRestartAfter brings a stopped lift back to its previous state after d. Zero keeps it stopped.
func WithRestartAfter(d time.Duration) Option { return func(s *LiftSimulator) { s.restartAfter = d } }

func WithInitialState(st messages.LiftStatus) Option { return func(s *LiftSimulator) { s.state = st } }

func NewLiftSimulator(consumer rabbitmq.ISubscriber, publisher rabbitmq.IPublisher,
	gen *DataGenerator, lift model.Lift, logger *zap.Logger, opts ...Option) *LiftSimulator {
	s := &LiftSimulator{
		state:     messages.StatusFullSteam,
		ctx:       context.Background(),
		lift:      lift,
		location:  lift.DisplayName(),
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
		logger:    logger.With(zap.String("lift_id", lift.ID)),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *LiftSimulator) State() messages.LiftStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start listens for commands and publishes a round of readings every interval until
// ctx is done.
func (s *LiftSimulator) Start(ctx context.Context, interval time.Duration) error {
	sub, err := s.consumer.Subscribe(ctx, topics.Inbox(s.lift.ID))
	if err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range sub.Frames() {
			s.handleFrame(ctx, f)
		}
	}()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.timer != nil {
				s.timer.Stop()
				s.timer = nil
			}
			s.mu.Unlock()
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = sub.Unsubscribe(uctx)
			cancel()
			<-done
			return nil
		case <-t.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Warn("publish failed", zap.Error(err))
			}
		}
	}
}

// Tick publishes one temperature, one wind and one status frame.
func (s *LiftSimulator) Tick(ctx context.Context) error {
	now := s.now()
	// wind first so the temperature carries its chill
	wind := s.generator.Wind()
	temp := s.generator.Temperature(now)

	errT := s.publishReading(ctx, topics.SensorTemperature, temp, now)
	errW := s.publishReading(ctx, topics.SensorWind, wind, now)
	errS := s.publishStatus(ctx)
	return errors.Join(errT, errW, errS)
}

func (s *LiftSimulator) publishReading(ctx context.Context, ch topics.Channel, v float64, at time.Time) error {
	return s.publish(ctx, topics.For(ch, topics.Lift(s.lift.ID)), messages.SensorReading{
		LiftID:    s.lift.ID,
		Location:  s.location,
		Value:     v,
		Timestamp: at.Format(TimestampLayout),
	})
}

func (s *LiftSimulator) publishStatus(ctx context.Context) error {
	st := s.State()
	upd := messages.StatusUpdate{LiftID: s.lift.ID, State: st}
	if w, ok := s.generator.WaitingTime(st); ok {
		upd.WaitingTime = &w
	}
	return s.publish(ctx, topics.For(topics.StatusUpdate, topics.Lift(s.lift.ID)), upd)
}

func (s *LiftSimulator) publish(ctx context.Context, dest string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, dest, payload, map[string]string{
		"content-type": "application/json",
		"lift-id":      s.lift.ID,
	})
}

func (s *LiftSimulator) handleFrame(ctx context.Context, f rabbitmq.Frame) {
	// the same command twice within the TTL is an operator double submit
	if !s.deduper.ShouldProcess(dedup.Key(f.Payload)) {
		s.logger.Debug("duplicate command ignored", zap.String("topic", f.Topic))
		return
	}

	var cmd messages.Command
	if err := json.Unmarshal(f.Payload, &cmd); err != nil {
		s.logger.Warn("invalid command", zap.String("topic", f.Topic), zap.Error(err))
		return
	}
	kind := f.Topic[strings.LastIndex(f.Topic, ".")+1:]
	if cmd.MessageKind == "" {
		cmd.MessageKind = kind
	}

	outcome := OutcomeSuccessful
	switch kind {
	case string(topics.EmergencyStop):
		abort := messages.DefaultAbortTime
		if cmd.AbortTime != nil {
			abort = max(*cmd.AbortTime, 0)
		}
		s.logger.Warn("emergency stop received",
			zap.String("user", cmd.User), zap.String("message", cmd.Message), zap.Int("abort_time", abort))
		s.scheduleStop(time.Duration(abort) * time.Second)
	case string(topics.Suggestion):
		s.logger.Info("suggestion received",
			zap.String("user", cmd.User), zap.String("severity", cmd.Severity), zap.String("message", cmd.Message))
	default:
		s.logger.Warn("command rejected", zap.String("kind", kind), zap.Error(errUnknownCommand))
		outcome = OutcomeFailed
	}

	if err := s.publish(ctx, topics.CommandLog(s.lift.ID, outcome), cmd); err != nil {
		s.logger.Warn("command report failed", zap.Error(err))
	}
}

// scheduleStop replaces any pending timer with a stop after delay.
func (s *LiftSimulator) scheduleStop(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.stop)
}

func (s *LiftSimulator) stop() {
	s.mu.Lock()
	prev := s.state
	s.state = messages.StatusStopped
	s.timer = nil
	if s.restartAfter > 0 && prev != messages.StatusStopped {
		s.timer = time.AfterFunc(s.restartAfter, func() { s.restart(prev) })
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Warn("lift stopped", zap.String("previous", string(prev)))
	if err := s.publishStatus(ctx); err != nil {
		s.logger.Warn("publish failed", zap.Error(err))
	}
}

func (s *LiftSimulator) restart(prev messages.LiftStatus) {
	s.mu.Lock()
	s.state = prev
	s.timer = nil
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Info("lift restarted", zap.String("state", string(prev)))
	if err := s.publishStatus(ctx); err != nil {
		s.logger.Warn("publish failed", zap.Error(err))
	}
}
