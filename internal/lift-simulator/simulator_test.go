package lift_simulator

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/topics"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq/rabbitmqtest"
)

var testLift = entities.Lift{
	ID:             "L1",
	Name:           "Col Raiser",
	StartLatitude:  46.5710,
	StartLongitude: 11.7390,
	StartElevation: 1570,
	EndLatitude:    46.5800,
	EndLongitude:   11.7600,
	EndElevation:   2100,
	SeatCapacity:   8,
}

func newSim(t *testing.T, opts ...Option) (*LiftSimulator, *rabbitmqtest.Transport) {
	t.Helper()
	tr := rabbitmqtest.New()
	q := NewQueueModel(testLift, 600, 5, 40)
	gen := NewDataGenerator(7, -4, 5, 6, 1.5, q)
	sim := NewLiftSimulator(tr, tr, gen, testLift, zap.NewNop(), opts...)
	sim.now = func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) }
	return sim, tr
}

// run starts the simulator with a long interval and waits for its command subscription.
func run(t *testing.T, sim *LiftSimulator, tr *rabbitmqtest.Transport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Start(ctx, time.Hour) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool {
		return len(tr.Active()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"skilift.L1.command.*"}, tr.Active())
}

func published(tr *rabbitmqtest.Transport, dest string) [][]byte {
	var out [][]byte
	for _, p := range tr.Published() {
		if p.Destination == dest {
			out = append(out, p.Payload)
		}
	}
	return out
}

func lastStatus(t *testing.T, tr *rabbitmqtest.Transport) messages.StatusUpdate {
	t.Helper()
	frames := published(tr, topics.For(topics.StatusUpdate, topics.Lift("L1")))
	require.NotEmpty(t, frames)
	var st messages.StatusUpdate
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], &st))
	return st
}

func TestTick_PublishesReadingsAndStatus(t *testing.T) {
	sim, tr := newSim(t)
	require.NoError(t, sim.Tick(context.Background()))

	pubs := tr.Published()
	require.Len(t, pubs, 3)
	assert.Equal(t, "skilift.L1.logs.sensor.temperature", pubs[0].Destination)
	assert.Equal(t, "skilift.L1.logs.sensor.wind", pubs[1].Destination)
	assert.Equal(t, "skilift.L1.logs.status_update", pubs[2].Destination)
	for _, p := range pubs {
		assert.Equal(t, "L1", p.Headers["lift-id"])
	}

	var temp messages.SensorReading
	require.NoError(t, json.Unmarshal(pubs[0].Payload, &temp))
	assert.Equal(t, "L1", temp.LiftID)
	assert.Equal(t, "Col Raiser", temp.Location)
	assert.Equal(t, "2025-01-10 12:00:00.000000", temp.Timestamp)

	var wind messages.SensorReading
	require.NoError(t, json.Unmarshal(pubs[1].Payload, &wind))
	assert.GreaterOrEqual(t, wind.Value, 0.0)
	assert.LessOrEqual(t, wind.Value, maxWind)

	st := lastStatus(t, tr)
	assert.Equal(t, messages.StatusFullSteam, st.State)
	require.NotNil(t, st.WaitingTime)
	assert.GreaterOrEqual(t, *st.WaitingTime, 0.0)
}

func TestTick_Disconnected(t *testing.T) {
	sim, tr := newSim(t)
	tr.SetConnected(false)
	assert.Error(t, sim.Tick(context.Background()))
}

func TestEmergencyStop(t *testing.T) {
	sim, tr := newSim(t)
	run(t, sim, tr)

	abort := 0
	body, _ := json.Marshal(messages.Command{
		MessageKind: messages.KindEmergencyStop,
		Severity:    messages.SeverityDanger,
		Message:     "cable inspection",
		User:        "op-1",
		Timestamp:   "2025-01-10T12:00:00.000",
		AbortTime:   &abort,
	})
	require.Equal(t, 1, tr.Emit(topics.Destination(topics.EmergencyStop, "L1"), body))

	require.Eventually(t, func() bool {
		return sim.State() == messages.StatusStopped
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(published(tr, topics.CommandLog("L1", OutcomeSuccessful))) == 1
	}, time.Second, 5*time.Millisecond)
	reports := published(tr, topics.CommandLog("L1", OutcomeSuccessful))
	var echoed messages.Command
	require.NoError(t, json.Unmarshal(reports[0], &echoed))
	assert.Equal(t, messages.KindEmergencyStop, echoed.MessageKind)
	assert.Equal(t, "cable inspection", echoed.Message)

	require.Eventually(t, func() bool {
		return len(published(tr, topics.For(topics.StatusUpdate, topics.Lift("L1")))) > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, messages.StatusStopped, lastStatus(t, tr).State)
	assert.Nil(t, lastStatus(t, tr).WaitingTime)
}

func TestEmergencyStop_DuplicateIgnored(t *testing.T) {
	sim, tr := newSim(t)
	run(t, sim, tr)

	abort := 60
	body, _ := json.Marshal(messages.Command{MessageKind: messages.KindEmergencyStop, User: "op-1", AbortTime: &abort})
	tr.Emit(topics.Destination(topics.EmergencyStop, "L1"), body)
	tr.Emit(topics.Destination(topics.EmergencyStop, "L1"), body)

	require.Eventually(t, func() bool {
		return len(published(tr, topics.CommandLog("L1", OutcomeSuccessful))) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, published(tr, topics.CommandLog("L1", OutcomeSuccessful)), 1)
	assert.Equal(t, messages.StatusFullSteam, sim.State(), "stop is still within its abort window")
}

func TestEmergencyStop_RestartAfter(t *testing.T) {
	sim, tr := newSim(t, WithRestartAfter(100*time.Millisecond), WithInitialState(messages.StatusHalfSteam))
	run(t, sim, tr)

	abort := 0
	body, _ := json.Marshal(messages.Command{MessageKind: messages.KindEmergencyStop, AbortTime: &abort})
	tr.Emit(topics.Destination(topics.EmergencyStop, "L1"), body)

	require.Eventually(t, func() bool {
		return sim.State() == messages.StatusStopped
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return sim.State() == messages.StatusHalfSteam
	}, time.Second, 5*time.Millisecond)
}

func TestSuggestion_DoesNotChangeState(t *testing.T) {
	sim, tr := newSim(t)
	run(t, sim, tr)

	body, _ := json.Marshal(messages.Command{MessageKind: messages.KindSuggestion, Severity: messages.SeverityWarning, Message: "slow down"})
	tr.Emit(topics.Destination(topics.Suggestion, "L1"), body)

	require.Eventually(t, func() bool {
		return len(published(tr, topics.CommandLog("L1", OutcomeSuccessful))) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, messages.StatusFullSteam, sim.State())
}

func TestUnknownCommand_ReportedAsFailed(t *testing.T) {
	sim, tr := newSim(t)
	run(t, sim, tr)

	tr.Emit("skilift.L1.command.reboot", []byte(`{"message":"now"}`))
	require.Eventually(t, func() bool {
		return len(published(tr, topics.CommandLog("L1", OutcomeFailed))) == 1
	}, time.Second, 5*time.Millisecond)

	var echoed messages.Command
	require.NoError(t, json.Unmarshal(published(tr, topics.CommandLog("L1", OutcomeFailed))[0], &echoed))
	assert.Equal(t, "reboot", echoed.MessageKind)
}

func TestInvalidCommand_Skipped(t *testing.T) {
	sim, tr := newSim(t)
	run(t, sim, tr)

	tr.Emit(topics.Destination(topics.EmergencyStop, "L1"), []byte(`not json`))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, tr.Published())
	assert.Equal(t, messages.StatusFullSteam, sim.State())
}

func TestQueueModel(t *testing.T) {
	q := NewQueueModel(testLift, 600, 5, 40)
	assert.InDelta(t, 1800, q.SlopeLength, 300)
	assert.Less(t, q.Utilization(), 1.0)

	pc := q.WaitProbability()
	assert.Greater(t, pc, 0.0)
	assert.Less(t, pc, 1.0)
	// a single loading point is M/M/1, where the wait probability equals utilization
	assert.InDelta(t, q.Utilization(), pc, 1e-9)
	assert.False(t, math.IsInf(q.AverageWait(), 1))

	q.ArrivalRate = 1e6
	assert.Equal(t, 1.0, q.WaitProbability())
	assert.True(t, math.IsInf(q.AverageWait(), 1))
}

func TestWaitingTime(t *testing.T) {
	gen := NewDataGenerator(1, 0, 0, 0, 0, NewQueueModel(testLift, 600, 5, 40))

	_, ok := gen.WaitingTime(messages.StatusStopped)
	assert.False(t, ok)
	_, ok = gen.WaitingTime(messages.StatusUnknown)
	assert.False(t, ok)

	full, ok := gen.WaitingTime(messages.StatusFullSteam)
	require.True(t, ok)
	assert.Equal(t, math.Ceil(full), full)

	overloaded := NewDataGenerator(1, 0, 0, 0, 0, NewQueueModel(testLift, 1e7, 5, 40))
	_, ok = overloaded.WaitingTime(messages.StatusFullSteam)
	assert.False(t, ok)
}
