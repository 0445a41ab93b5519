// Package topics maps lifts and channel kinds onto broker topic names.
//
// Names follow the topic exchange layout used by the lifts:
//
//	skilift.<lift id | *>.logs.<channel>
//
// Every function here is pure; equal inputs give equal names, which lets callers
// compare topics to decide whether a subscription needs to change.
package topics

import (
	"errors"
	"fmt"
	"strings"
)

const (
	prefix   = "skilift"
	logs     = "logs"
	command  = "command"
	Wildcard = "*"
)

// Channel is the closed set of event streams a lift emits.
type Channel string

const (
	SensorTemperature Channel = "sensor.temperature"
	SensorWind        Channel = "sensor.wind"
	SensorAll         Channel = "sensor.*"
	StatusUpdate      Channel = "status_update"
	Command           Channel = "command.*"
)

// SelectionChannels are subscribed for the selected lift, in this order.
var SelectionChannels = []Channel{SensorTemperature, SensorWind, StatusUpdate, Command}

func (c Channel) Valid() bool {
	switch c {
	case SensorTemperature, SensorWind, SensorAll, StatusUpdate, Command:
		return true
	}
	return false
}

// Scope is either Wildcard or one lift id.
type Scope string

const All Scope = Wildcard

func Lift(id string) Scope { return Scope(id) }

func (s Scope) IsWildcard() bool { return s == All }

// Topic is the structured form of a topic name.
type Topic struct {
	Scope   Scope
	Channel Channel
}

func (t Topic) String() string { return For(t.Channel, t.Scope) }

// For returns the subscription topic for channel c in scope s.
func For(c Channel, s Scope) string {
	return prefix + "." + string(s) + "." + logs + "." + string(c)
}

// CommandKind selects an outbound command destination.
type CommandKind string

const (
	EmergencyStop CommandKind = "emergency_stop"
	Suggestion    CommandKind = "suggestion"
)

// Destination returns the per-lift destination for outbound commands.
func Destination(kind CommandKind, liftID string) string {
	return prefix + "." + liftID + "." + command + "." + string(kind)
}

var ErrUnknownTopic = errors.New("topics: unknown topic")

// Parse recovers scope and channel from a delivered topic such as
// "skilift.42.logs.sensor.wind" or "skilift.42.logs.command.emergency_stop".
func Parse(topic string) (Topic, error) {
	parts := strings.Split(topic, ".")
	if len(parts) < 4 || parts[0] != prefix || parts[2] != logs || parts[1] == "" {
		return Topic{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	rest := parts[3:]

	var ch Channel
	switch {
	case len(rest) == 1 && rest[0] == string(StatusUpdate):
		ch = StatusUpdate
	case len(rest) == 2 && rest[0] == "sensor":
		switch rest[1] {
		case "temperature":
			ch = SensorTemperature
		case "wind":
			ch = SensorWind
		case Wildcard:
			ch = SensorAll
		}
	case len(rest) == 2 && rest[0] == command:
		ch = Command
	}
	if ch == "" {
		return Topic{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	return Topic{Scope: Scope(parts[1]), Channel: ch}, nil
}

// Inbox is the filter a lift subscribes to for every command kind addressed to it.
func Inbox(liftID string) string {
	return prefix + "." + liftID + "." + command + "." + Wildcard
}

// CommandLog is where a lift reports the outcome of a command it handled.
func CommandLog(liftID, outcome string) string {
	return prefix + "." + liftID + "." + logs + "." + command + "." + outcome
}
