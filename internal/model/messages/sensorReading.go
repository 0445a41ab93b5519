package messages

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SensorReading is a temperature or wind sample. Lifts publish these loosely typed,
// so value may arrive as a number or as a numeric string.
type SensorReading struct {
	LiftID    string  `json:"lift_id,omitempty"`
	Location  string  `json:"location"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

func (s *SensorReading) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if v, ok := m["lift_id"].(string); ok {
		s.LiftID = v
	} else if v, ok := m["liftId"].(string); ok {
		s.LiftID = v
	}
	if v, ok := m["location"].(string); ok {
		s.Location = v
	}
	if t, ok := m["timestamp"].(string); ok {
		s.Timestamp = t
	} else if t, ok := m["time"].(string); ok {
		s.Timestamp = t
	}
	if v, ok := number(m["value"]); ok {
		s.Value = v
	}
	return nil
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
