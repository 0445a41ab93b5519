// Package metadata fetches lift and log records from the REST backend and keeps a
// snapshot of the last good lift list.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"
)

var (
	ErrBreakerOpen  = errors.New("metadata: circuit open")
	ErrUnauthorized = errors.New("metadata: unauthorized")
)

type Config struct {
	BaseURL string
	Token   string // bearer token for the authenticated endpoints
	Timeout time.Duration
	Retries int

	BreakerFailures int
	BreakerOpen     time.Duration
	BreakerInterval time.Duration
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata: GET %s: status %d", e.Path, e.Status)
}

// Client talks to the lift metadata API through a circuit breaker.
type Client struct {
	http   *resty.Client
	cb     *gobreaker.CircuitBreaker
	token  string
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	fails := uint32(cfg.BreakerFailures)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "metadata",
		Interval: cfg.BreakerInterval,
		Timeout:  cfg.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{http: httpClient, cb: cb, token: cfg.Token, logger: logger}
}

// PublicLifts lists the lifts visible without authentication.
func (c *Client) PublicLifts(ctx context.Context) ([]model.Lift, error) {
	var out []model.Lift
	if err := c.get(ctx, "/public-lifts", nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OperatorLifts lists the lifts run by operatorID.
func (c *Client) OperatorLifts(ctx context.Context, operatorID string) ([]model.Lift, error) {
	var out []model.Lift
	q := map[string]string{}
	if operatorID != "" {
		q["operatorId"] = operatorID
	}
	if err := c.get(ctx, "/private-lifts", q, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logs lists the stored broker messages.
func (c *Client) Logs(ctx context.Context) ([]model.LogRecord, error) {
	var out []model.LogRecord
	if err := c.get(ctx, "/logs", nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BreakerState() string { return c.cb.State().String() }

func (c *Client) get(ctx context.Context, path string, query map[string]string, auth bool, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		req := c.http.R().SetContext(ctx).SetQueryParams(query).SetResult(out)
		if auth {
			if c.token == "" {
				return nil, ErrUnauthorized
			}
			req.SetAuthToken(c.token)
		}
		resp, err := req.Get(path)
		if err != nil {
			return nil, fmt.Errorf("metadata: GET %s: %w", path, err)
		}
		switch {
		case resp.StatusCode() == 401 || resp.StatusCode() == 403:
			return nil, fmt.Errorf("%w: GET %s", ErrUnauthorized, path)
		case resp.IsError():
			return nil, &StatusError{Path: path, Status: resp.StatusCode()}
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		c.logger.Warn("metadata request failed", zap.String("path", path), zap.Error(err))
	}
	return err
}
