package monitor

import (
	"strconv"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
)

type Color string

const (
	ColorRed    Color = "red"
	ColorOrange Color = "orange"
	ColorYellow Color = "yellow"
	ColorBlack  Color = "black"
	ColorGrey   Color = "grey"
)

const (
	WeightDefault   = 3
	WeightHalfSteam = 5
	WeightFullSteam = 7
)

// LiftState is the derived point state of one lift.
type LiftState struct {
	Status      messages.LiftStatus `json:"status"`
	WaitingTime *float64            `json:"waitingTime,omitempty"`
}

// Visual is how a lift is drawn on the map.
type Visual struct {
	Color       Color  `json:"color"`
	Weight      int    `json:"weight"`
	ShowTooltip bool   `json:"showTooltip"`
	Tooltip     string `json:"tooltip,omitempty"`
}

// DeriveColor maps waiting minutes to a line colour; a stopped lift is always red.
func DeriveColor(waiting *float64, status messages.LiftStatus) Color {
	if status == messages.StatusStopped {
		return ColorRed
	}
	if waiting == nil {
		return ColorGrey
	}
	switch w := *waiting; {
	case w >= 30:
		return ColorRed
	case w >= 15:
		return ColorOrange
	case w >= 5:
		return ColorYellow
	case w > 0:
		return ColorBlack
	}
	return ColorGrey
}

func DeriveWeight(status messages.LiftStatus) int {
	switch status {
	case messages.StatusHalfSteam:
		return WeightHalfSteam
	case messages.StatusFullSteam:
		return WeightFullSteam
	}
	return WeightDefault
}

// TooltipLabel returns the waiting-time label, or false when no tooltip is shown.
func TooltipLabel(waiting *float64) (string, bool) {
	if waiting == nil || *waiting < 0 {
		return "", false
	}
	return strconv.FormatFloat(*waiting, 'f', -1, 64) + "min.", true
}

func Derive(s LiftState) Visual {
	label, ok := TooltipLabel(s.WaitingTime)
	return Visual{
		Color:       DeriveColor(s.WaitingTime, s.Status),
		Weight:      DeriveWeight(s.Status),
		ShowTooltip: ok,
		Tooltip:     label,
	}
}

// SelectionLogs is the table data for the selected lift. Every slice is newest-first.
type SelectionLogs struct {
	LiftID       string             `json:"liftId,omitempty"`
	Status       *LiftState         `json:"status,omitempty"`
	Temperatures []TemperatureEvent `json:"temperatures"`
	Winds        []WindEvent        `json:"winds"`
	Commands     []CommandEvent     `json:"commands"`
}

// Projector folds events into derived state. Logs are stored in receipt order and
// presented newest-first. It is owned by the view loop and is not safe for
// concurrent use.
type Projector struct {
	selected     string
	status       *StatusEvent
	temperatures []TemperatureEvent
	winds        []WindEvent
	commands     []CommandEvent

	// every broadcast received on the overview stream, oldest first
	overview []StatusEvent
}

func NewProjector() *Projector { return &Projector{} }

// Reset drops all selection-scoped state and starts accepting events for liftID
// ("" accepts nothing). The overview history is kept.
func (p *Projector) Reset(liftID string) {
	p.selected = liftID
	p.status = nil
	p.temperatures = nil
	p.winds = nil
	p.commands = nil
}

func (p *Projector) Selected() string { return p.selected }

// Apply folds a selection-scoped event. Events for any other lift are refused.
func (p *Projector) Apply(e Event) bool {
	if p.selected == "" || e.Metadata().LiftID != p.selected {
		return false
	}
	switch ev := e.(type) {
	case TemperatureEvent:
		p.temperatures = append(p.temperatures, ev)
	case WindEvent:
		p.winds = append(p.winds, ev)
	case CommandEvent:
		p.commands = append(p.commands, ev)
	case StatusEvent:
		p.status = &ev
	default:
		return false
	}
	return true
}

// ApplyOverview records a broadcast from the wildcard status stream.
func (p *Projector) ApplyOverview(e StatusEvent) {
	p.overview = append(p.overview, e)
}

// Current resolves the state of liftID from the overview history: the most recently
// received broadcast for that lift wins. No broadcast yet means no state.
func (p *Projector) Current(liftID string) (LiftState, bool) {
	for i := len(p.overview) - 1; i >= 0; i-- {
		if e := p.overview[i]; e.LiftID == liftID {
			return LiftState{Status: e.Status.State, WaitingTime: e.Status.WaitingTime}, true
		}
	}
	return LiftState{}, false
}

// Overview returns the broadcast history newest-first.
func (p *Projector) Overview() []StatusEvent { return newestFirst(p.overview) }

func (p *Projector) Logs() SelectionLogs {
	out := SelectionLogs{
		LiftID:       p.selected,
		Temperatures: newestFirst(p.temperatures),
		Winds:        newestFirst(p.winds),
		Commands:     newestFirst(p.commands),
	}
	if p.status != nil {
		out.Status = &LiftState{Status: p.status.Status.State, WaitingTime: p.status.Status.WaitingTime}
	}
	return out
}

func newestFirst[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
