package messages

import (
	"encoding/json"
	"strings"
)

// LiftStatus is the engine state reported by a lift.
type LiftStatus string

const (
	StatusUnknown   LiftStatus = "unknown"
	StatusFullSteam LiftStatus = "full-steam"
	StatusHalfSteam LiftStatus = "half-steam"
	StatusStopped   LiftStatus = "stopped"
)

// ParseLiftStatus accepts both "full-steam" and "FULL_STEAM" spellings.
func ParseLiftStatus(s string) LiftStatus {
	switch LiftStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")) {
	case StatusFullSteam:
		return StatusFullSteam
	case StatusHalfSteam:
		return StatusHalfSteam
	case StatusStopped:
		return StatusStopped
	}
	return StatusUnknown
}

// StatusUpdate is the periodic broadcast every lift sends on status_update.
// WaitingTime is nil when the lift did not report one.
type StatusUpdate struct {
	LiftID      string     `json:"liftId,omitempty"`
	State       LiftStatus `json:"skiLiftState"`
	WaitingTime *float64   `json:"waitingTime,omitempty"`
}

func (s *StatusUpdate) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if v, ok := m["liftId"].(string); ok {
		s.LiftID = v
	} else if v, ok := m["lift_id"].(string); ok {
		s.LiftID = v
	}
	s.State = StatusUnknown
	if v, ok := m["skiLiftState"].(string); ok {
		s.State = ParseLiftStatus(v)
	}
	if v, ok := number(m["waitingTime"]); ok {
		s.WaitingTime = &v
	}
	return nil
}
