package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/topics"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

const (
	// TimestampLayout is ISO-8601 local date-time with milliseconds and no zone suffix.
	TimestampLayout   = "2006-01-02T15:04:05.000"
	ContentTypeBinary = "application/octet-stream"
)

var (
	ErrInvalidLiftID   = errors.New("invalid lift id")
	ErrInvalidSeverity = errors.New("invalid severity")
)

// Identity names the sender of outbound commands.
type Identity interface {
	User(ctx context.Context) string
}

type StaticIdentity string

func (s StaticIdentity) User(context.Context) string { return string(s) }

// CommandPublisher sends operator commands to the per-lift destinations.
type CommandPublisher struct {
	pub     rabbitmq.IPublisher
	id      Identity
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewCommandPublisher(pub rabbitmq.IPublisher, id Identity, logger *zap.Logger, m *Metrics) *CommandPublisher {
	return &CommandPublisher{pub: pub, id: id, logger: logger, metrics: m, now: time.Now}
}

func EncodeCommand(c messages.Command) ([]byte, error) { return json.Marshal(c) }

func DecodeCommand(b []byte) (messages.Command, error) {
	var c messages.Command
	if err := json.Unmarshal(b, &c); err != nil {
		return messages.Command{}, fmt.Errorf("decode command: %w", err)
	}
	return c, nil
}

// Send stamps cmd with the sender and the current time and hands it to the transport.
// It returns the command as sent. Nothing is awaited beyond the hand-off.
func (p *CommandPublisher) Send(ctx context.Context, liftID string, kind topics.CommandKind, cmd messages.Command) (messages.Command, error) {
	if liftID == "" || strings.ContainsAny(liftID, ".*#/+ ") {
		return messages.Command{}, fmt.Errorf("%w: %q", ErrInvalidLiftID, liftID)
	}
	cmd.User = p.id.User(ctx)
	cmd.Timestamp = p.now().UTC().Format(TimestampLayout)

	body, err := EncodeCommand(cmd)
	if err != nil {
		return messages.Command{}, fmt.Errorf("encode command: %w", err)
	}
	dest := topics.Destination(kind, liftID)
	headers := map[string]string{
		HeaderContentType: ContentTypeBinary,
		HeaderLiftID:      liftID,
	}
	if err := p.pub.Publish(ctx, dest, body, headers); err != nil {
		p.metrics.CommandFailed(string(kind))
		return messages.Command{}, fmt.Errorf("publish %s: %w", dest, err)
	}
	p.metrics.CommandPublished(string(kind))
	p.logger.Info("command sent",
		zap.String("lift_id", liftID),
		zap.String("kind", string(kind)),
		zap.String("user", cmd.User))
	return cmd, nil
}

// EmergencyStop asks liftID to stop after abortTime seconds (DefaultAbortTime when <= 0).
func (p *CommandPublisher) EmergencyStop(ctx context.Context, liftID, message string, abortTime int) (messages.Command, error) {
	if abortTime <= 0 {
		abortTime = messages.DefaultAbortTime
	}
	return p.Send(ctx, liftID, topics.EmergencyStop, messages.Command{
		MessageKind: messages.KindEmergencyStop,
		Severity:    messages.SeverityDanger,
		Message:     message,
		AbortTime:   &abortTime,
	})
}

func (p *CommandPublisher) Suggest(ctx context.Context, liftID, severity, message string) (messages.Command, error) {
	if severity == "" {
		severity = messages.SeverityInfo
	}
	if !messages.ValidSeverity(severity) {
		return messages.Command{}, fmt.Errorf("%w: %q", ErrInvalidSeverity, severity)
	}
	return p.Send(ctx, liftID, topics.Suggestion, messages.Command{
		MessageKind: messages.KindSuggestion,
		Severity:    severity,
		Message:     message,
	})
}
