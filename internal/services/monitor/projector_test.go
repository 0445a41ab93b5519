package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
)

func ptr(f float64) *float64 { return &f }

func TestDeriveColor(t *testing.T) {
	cases := []struct {
		waiting *float64
		status  messages.LiftStatus
		want    Color
	}{
		{ptr(32), messages.StatusFullSteam, ColorRed},
		{ptr(30), messages.StatusFullSteam, ColorRed},
		{ptr(29.9), messages.StatusFullSteam, ColorOrange},
		{ptr(15), messages.StatusHalfSteam, ColorOrange},
		{ptr(14), messages.StatusHalfSteam, ColorYellow},
		{ptr(5), messages.StatusUnknown, ColorYellow},
		{ptr(4.5), messages.StatusUnknown, ColorBlack},
		{ptr(0.1), messages.StatusUnknown, ColorBlack},
		{ptr(0), messages.StatusHalfSteam, ColorGrey},
		{ptr(-3), messages.StatusHalfSteam, ColorGrey},
		{nil, messages.StatusFullSteam, ColorGrey},
		{ptr(20), messages.StatusStopped, ColorRed},
		{ptr(0), messages.StatusStopped, ColorRed},
		{nil, messages.StatusStopped, ColorRed},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DeriveColor(c.waiting, c.status), "waiting=%v status=%s", c.waiting, c.status)
	}
}

func TestDeriveWeight(t *testing.T) {
	assert.Equal(t, 7, DeriveWeight(messages.StatusFullSteam))
	assert.Equal(t, 5, DeriveWeight(messages.StatusHalfSteam))
	assert.Equal(t, 3, DeriveWeight(messages.StatusStopped))
	assert.Equal(t, 3, DeriveWeight(messages.StatusUnknown))
}

func TestDerive(t *testing.T) {
	v := Derive(LiftState{Status: messages.StatusFullSteam, WaitingTime: ptr(32)})
	assert.Equal(t, Visual{Color: ColorRed, Weight: 7, ShowTooltip: true, Tooltip: "32min."}, v)

	v = Derive(LiftState{Status: messages.StatusHalfSteam, WaitingTime: ptr(0)})
	assert.Equal(t, Visual{Color: ColorGrey, Weight: 5, ShowTooltip: true, Tooltip: "0min."}, v)

	v = Derive(LiftState{Status: messages.StatusStopped, WaitingTime: ptr(20)})
	assert.Equal(t, ColorRed, v.Color)
	assert.Equal(t, 3, v.Weight)

	v = Derive(LiftState{Status: messages.StatusFullSteam})
	assert.False(t, v.ShowTooltip)

	v = Derive(LiftState{Status: messages.StatusFullSteam, WaitingTime: ptr(-1)})
	assert.False(t, v.ShowTooltip)

	label, ok := TooltipLabel(ptr(7.5))
	assert.True(t, ok)
	assert.Equal(t, "7.5min.", label)
}

func status(seq uint64, lift string, waiting float64) StatusEvent {
	return StatusEvent{
		Meta:   Meta{LiftID: lift, Seq: seq},
		Status: messages.StatusUpdate{State: messages.StatusFullSteam, WaitingTime: ptr(waiting)},
	}
}

func TestProjector_CurrentIsMostRecentlyReceived(t *testing.T) {
	p := NewProjector()
	_, ok := p.Current("x")
	assert.False(t, ok)

	p.ApplyOverview(status(1, "x", 10))
	p.ApplyOverview(status(2, "y", 40))
	p.ApplyOverview(status(3, "x", 2))

	st, ok := p.Current("x")
	require.True(t, ok)
	assert.Equal(t, 2.0, *st.WaitingTime)

	st, ok = p.Current("y")
	require.True(t, ok)
	assert.Equal(t, 40.0, *st.WaitingTime)

	hist := p.Overview()
	require.Len(t, hist, 3)
	assert.Equal(t, uint64(3), hist[0].Seq)
	assert.Equal(t, uint64(1), hist[2].Seq)
}

func TestProjector_OverviewIgnoresTimestamps(t *testing.T) {
	p := NewProjector()
	// receipt order wins even if a later frame carries an older sequence
	p.ApplyOverview(status(9, "x", 10))
	p.ApplyOverview(status(1, "x", 2))
	st, _ := p.Current("x")
	assert.Equal(t, 2.0, *st.WaitingTime)
}

func TestProjector_SelectionLogsNewestFirst(t *testing.T) {
	p := NewProjector()
	p.Reset("a")

	assert.True(t, p.Apply(TemperatureEvent{Meta: Meta{LiftID: "a", Seq: 1}}))
	assert.True(t, p.Apply(TemperatureEvent{Meta: Meta{LiftID: "a", Seq: 2}}))
	assert.True(t, p.Apply(WindEvent{Meta: Meta{LiftID: "a", Seq: 3}}))
	assert.True(t, p.Apply(CommandEvent{Meta: Meta{LiftID: "a", Seq: 4}, Name: "suggestion"}))
	assert.True(t, p.Apply(status(5, "a", 12)))
	assert.True(t, p.Apply(status(6, "a", 3)))

	logs := p.Logs()
	assert.Equal(t, "a", logs.LiftID)
	require.Len(t, logs.Temperatures, 2)
	assert.Equal(t, uint64(2), logs.Temperatures[0].Seq)
	assert.Equal(t, uint64(1), logs.Temperatures[1].Seq)
	require.Len(t, logs.Winds, 1)
	require.Len(t, logs.Commands, 1)
	require.NotNil(t, logs.Status)
	assert.Equal(t, 3.0, *logs.Status.WaitingTime)
}

func TestProjector_RejectsOtherLifts(t *testing.T) {
	p := NewProjector()
	assert.False(t, p.Apply(TemperatureEvent{Meta: Meta{LiftID: "a"}}), "nothing selected")

	p.Reset("a")
	assert.False(t, p.Apply(TemperatureEvent{Meta: Meta{LiftID: "b"}}))
	assert.False(t, p.Apply(UnknownEvent{Meta: Meta{LiftID: "a"}}))
	assert.Empty(t, p.Logs().Temperatures)
}

func TestProjector_ResetClearsSelectionButKeepsOverview(t *testing.T) {
	p := NewProjector()
	p.Reset("a")
	p.Apply(TemperatureEvent{Meta: Meta{LiftID: "a"}})
	p.Apply(status(1, "a", 4))
	p.ApplyOverview(status(2, "a", 4))

	p.Reset("b")
	logs := p.Logs()
	assert.Equal(t, "b", logs.LiftID)
	assert.Empty(t, logs.Temperatures)
	assert.Nil(t, logs.Status)
	_, ok := p.Current("a")
	assert.True(t, ok)
}
