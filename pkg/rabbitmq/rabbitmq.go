package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("rabbitmq: not connected")

// RabbitMQConfig describes the Web-MQTT endpoint of the broker.
type RabbitMQConfig struct {
	URL            string // ws://host:15675/ws
	User           string
	Password       string
	ClientID       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration // fixed delay, used for the first connect and for reconnects
	ConnectRetries int

	OnConnect        func()
	OnConnectionLost func(error)
}

func (c *RabbitMQConfig) withDefaults() RabbitMQConfig {
	out := *c
	if out.KeepAlive <= 0 {
		out.KeepAlive = 20 * time.Second
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = 200 * time.Millisecond
	}
	if out.ConnectRetries <= 0 {
		out.ConnectRetries = 5
	}
	return out
}

// NewRabbitMQConn opens the broker connection. The first attempt is retried with a
// constant delay; later disconnects are handled by paho's auto-reconnect, capped at
// the same delay. Anything published while the link is down is lost.
func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQConfig, logger *zap.Logger) (mqtt.Client, error) {
	c := cfg.withDefaults()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.URL)
	opts.SetUsername(c.User)
	opts.SetPassword(c.Password)
	opts.SetClientID(c.ClientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(c.KeepAlive)
	opts.SetConnectTimeout(c.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.ReconnectDelay)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("broker connected", zap.String("url", c.URL))
		if c.OnConnect != nil {
			c.OnConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("broker connection lost", zap.Error(err))
		if c.OnConnectionLost != nil {
			c.OnConnectionLost(err)
		}
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("reconnecting to broker", zap.Duration("delay", c.ReconnectDelay))
	})

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.ReconnectDelay), uint64(c.ConnectRetries-1)),
		ctx,
	)

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		token := client.Connect()
		if !token.WaitTimeout(c.ConnectTimeout) {
			return fmt.Errorf("connect timeout after %s", c.ConnectTimeout)
		}
		if err := token.Error(); err != nil {
			logger.Warn("failed to connect to broker", zap.String("url", c.URL), zap.Error(err))
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("could not establish broker connection after retries: %w", err)
	}

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client, logger)
	}()

	return client, nil
}

func CloseRabbitMQConn(client mqtt.Client, logger *zap.Logger) {
	if client.IsConnected() {
		client.Disconnect(250)
		logger.Info("broker connection closed")
	}
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
