package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/topics"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

const (
	HeaderContentType = "content-type"
	HeaderLiftID      = "lift-id"
)

// Meta is what every decoded event carries. Seq is the receipt order; lifts send no
// authoritative timestamp, so ordering decisions use Seq only.
type Meta struct {
	LiftID  string         `json:"liftId"`
	Topic   string         `json:"topic"`
	Channel topics.Channel `json:"channel"`
	Seq     uint64         `json:"seq"`
}

func (m Meta) Metadata() Meta { return m }
func (Meta) event()           {}

// Event is one of TemperatureEvent, WindEvent, StatusEvent, CommandEvent or UnknownEvent.
type Event interface {
	Metadata() Meta
	event()
}

type TemperatureEvent struct {
	Meta
	Reading messages.SensorReading `json:"reading"`
}

type WindEvent struct {
	Meta
	Reading messages.SensorReading `json:"reading"`
}

type StatusEvent struct {
	Meta
	Status messages.StatusUpdate `json:"status"`
}

type CommandEvent struct {
	Meta
	Name    string           `json:"name"` // last topic segment, e.g. emergency_stop
	Command messages.Command `json:"command"`
}

// UnknownEvent holds valid JSON whose shape does not fit its channel.
type UnknownEvent struct {
	Meta
	Body json.RawMessage `json:"body"`
}

type DecodeClass string

const (
	ClassMalformed  DecodeClass = "malformed"
	ClassUnroutable DecodeClass = "unroutable"
)

var errNoLiftID = errors.New("no lift id in topic, headers or payload")

// DecodeError reports a frame that could not be turned into an Event. It only ever
// concerns that one frame.
type DecodeError struct {
	Topic string
	Class DecodeClass
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s): %v", e.Topic, e.Class, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns a raw frame into a typed event. It never panics; any failure is a *DecodeError.
func Decode(f rabbitmq.Frame) (Event, error) {
	t, err := topics.Parse(f.Topic)
	if err != nil {
		return nil, &DecodeError{Topic: f.Topic, Class: ClassUnroutable, Err: err}
	}

	var body any
	if err := json.Unmarshal(f.Payload, &body); err != nil {
		return nil, &DecodeError{Topic: f.Topic, Class: ClassMalformed, Err: err}
	}
	obj, isObject := body.(map[string]any)

	liftID := resolveLiftID(t.Scope, f.Headers, obj)
	if liftID == "" {
		return nil, &DecodeError{Topic: f.Topic, Class: ClassUnroutable, Err: errNoLiftID}
	}
	meta := Meta{LiftID: liftID, Topic: f.Topic, Channel: t.Channel, Seq: f.Seq}
	unknown := UnknownEvent{Meta: meta, Body: json.RawMessage(f.Payload)}
	if !isObject || !hasAny(obj, channelKeys[t.Channel]) {
		return unknown, nil
	}

	switch t.Channel {
	case topics.SensorTemperature, topics.SensorWind:
		var r messages.SensorReading
		if err := json.Unmarshal(f.Payload, &r); err != nil {
			return unknown, nil
		}
		if t.Channel == topics.SensorTemperature {
			return TemperatureEvent{Meta: meta, Reading: r}, nil
		}
		return WindEvent{Meta: meta, Reading: r}, nil

	case topics.StatusUpdate:
		var s messages.StatusUpdate
		if err := json.Unmarshal(f.Payload, &s); err != nil {
			return unknown, nil
		}
		return StatusEvent{Meta: meta, Status: s}, nil

	case topics.Command:
		var c messages.Command
		if err := json.Unmarshal(f.Payload, &c); err != nil {
			return unknown, nil
		}
		name := f.Topic[strings.LastIndex(f.Topic, ".")+1:]
		return CommandEvent{Meta: meta, Name: name, Command: c}, nil
	}
	return unknown, nil
}

// channelKeys are the fields of which an object needs at least one to count as a
// message of that channel.
var channelKeys = map[topics.Channel][]string{
	topics.SensorTemperature: {"value"},
	topics.SensorWind:        {"value"},
	topics.StatusUpdate:      {"skiLiftState", "waitingTime"},
	topics.Command:           {"messageKind", "message", "user"},
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// resolveLiftID prefers the topic, then the lift-id header, then the payload.
func resolveLiftID(scope topics.Scope, headers map[string]string, body map[string]any) string {
	if !scope.IsWildcard() {
		return string(scope)
	}
	if id := strings.TrimSpace(headers[HeaderLiftID]); id != "" {
		return id
	}
	for _, k := range []string{"liftId", "lift_id"} {
		if id, ok := body[k].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return ""
}
