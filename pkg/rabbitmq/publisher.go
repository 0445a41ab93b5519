package rabbitmq

import (
	"context"

	"go.uber.org/zap"
)

// IPublisher sends a payload to a destination. Fire-and-forget: a nil error means the
// payload was handed to the client, not that anyone received it.
type IPublisher interface {
	Publish(ctx context.Context, destination string, payload []byte, headers map[string]string) error
}

// Publish sends at QoS 0 and does not wait for the token. MQTT 3.1.1 has no header
// block, so headers are only logged; destinations already carry the lift id.
func (t *MQTTTransport) Publish(ctx context.Context, destination string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if len(headers) > 0 {
		t.logger.Debug("headers not transmitted over mqtt",
			zap.String("destination", destination), zap.Any("headers", headers))
	}
	t.client.Publish(ToMQTT(destination), 0, false, payload)
	return nil
}
