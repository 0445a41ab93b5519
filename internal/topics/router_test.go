package topics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	assert.Equal(t, "skilift.*.logs.status_update", For(StatusUpdate, All))
	assert.Equal(t, "skilift.l1.logs.sensor.temperature", For(SensorTemperature, Lift("l1")))
	assert.Equal(t, "skilift.l1.logs.sensor.*", For(SensorAll, Lift("l1")))
	assert.Equal(t, "skilift.l1.logs.command.*", For(Command, Lift("l1")))
	assert.Equal(t, For(SensorWind, Lift("l1")), For(SensorWind, Lift("l1")))
	assert.NotEqual(t, For(SensorWind, Lift("l1")), For(SensorWind, Lift("l2")))
}

func TestDestination(t *testing.T) {
	assert.Equal(t, "skilift.l1.command.emergency_stop", Destination(EmergencyStop, "l1"))
	assert.Equal(t, "skilift.l1.command.suggestion", Destination(Suggestion, "l1"))
}

func TestLiftSideTopics(t *testing.T) {
	assert.Equal(t, "skilift.l1.command.*", Inbox("l1"))

	log := CommandLog("l1", "successful")
	assert.Equal(t, "skilift.l1.logs.command.successful", log)
	parsed, err := Parse(log)
	require.NoError(t, err)
	assert.Equal(t, Topic{Scope: Lift("l1"), Channel: Command}, parsed)
}

func TestParse(t *testing.T) {
	cases := map[string]Topic{
		"skilift.l1.logs.sensor.temperature":     {Scope: "l1", Channel: SensorTemperature},
		"skilift.l1.logs.sensor.wind":            {Scope: "l1", Channel: SensorWind},
		"skilift.l1.logs.status_update":          {Scope: "l1", Channel: StatusUpdate},
		"skilift.l1.logs.command.emergency_stop": {Scope: "l1", Channel: Command},
		"skilift.*.logs.status_update":           {Scope: All, Channel: StatusUpdate},
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParse_RoundTripsFor(t *testing.T) {
	for _, c := range []Channel{SensorTemperature, SensorWind, SensorAll, StatusUpdate} {
		got, err := Parse(For(c, Lift("x")))
		require.NoError(t, err)
		assert.Equal(t, Topic{Scope: "x", Channel: c}, got)
		assert.Equal(t, For(c, Lift("x")), got.String())
	}
}

func TestParse_Unknown(t *testing.T) {
	for _, in := range []string{"", "skilift", "other.l1.logs.status_update", "skilift.l1.logs.sensor.humidity", "skilift..logs.status_update"} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrUnknownTopic), in)
	}
}

func TestSelectionChannels(t *testing.T) {
	require.Len(t, SelectionChannels, 4)
	for _, c := range SelectionChannels {
		assert.True(t, c.Valid())
	}
	assert.False(t, Channel("sensor.humidity").Valid())
}
