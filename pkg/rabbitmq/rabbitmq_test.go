package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMQTT(t *testing.T) {
	assert.Equal(t, "skilift/+/logs/status_update", ToMQTT("skilift.*.logs.status_update"))
	assert.Equal(t, "skilift/abc/logs/command/+", ToMQTT("skilift.abc.logs.command.*"))
	assert.Equal(t, "skilift/#", ToMQTT("skilift.#"))
	assert.Equal(t, "skilift.*.logs.status_update", FromMQTT(ToMQTT("skilift.*.logs.status_update")))
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"skilift.*.logs.status_update", "skilift.a.logs.status_update", true},
		{"skilift.*.logs.status_update", "skilift.a.logs.sensor.wind", false},
		{"skilift.a.logs.sensor.*", "skilift.a.logs.sensor.wind", true},
		{"skilift.a.logs.sensor.*", "skilift.b.logs.sensor.wind", false},
		{"skilift.a.logs.command.*", "skilift.a.logs.command", false},
		{"skilift.#", "skilift.a.logs.command.stop", true},
		{"skilift.#", "skilift", true},
		{"skilift.#.wind", "skilift.a.logs.sensor.wind", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Match(c.pattern, c.topic), "%s vs %s", c.pattern, c.topic)
	}
}

func TestSubscription_DeliverAfterUnsubscribe(t *testing.T) {
	released := 0
	s := NewSubscription("skilift.a.logs.sensor.wind", 2, func(context.Context) error {
		released++
		return nil
	})

	require.True(t, s.Deliver(Frame{Seq: 1}))
	require.NoError(t, s.Unsubscribe(context.Background()))
	require.NoError(t, s.Unsubscribe(context.Background()))
	assert.Equal(t, 1, released)
	assert.False(t, s.Deliver(Frame{Seq: 2}))

	// the buffered frame is still readable: the race the consumer has to tolerate
	f, ok := <-s.Frames()
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq)
	_, ok = <-s.Frames()
	assert.False(t, ok)
}

func TestSubscription_FullBufferDrops(t *testing.T) {
	s := NewSubscription("t", 1, nil)
	assert.True(t, s.Deliver(Frame{Seq: 1}))
	assert.False(t, s.Deliver(Frame{Seq: 2}))
	assert.False(t, s.Closed())
}
