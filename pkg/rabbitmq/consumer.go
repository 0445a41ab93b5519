package rabbitmq

import (
	"context"
	"sync"
)

// Frame is one raw delivery.
type Frame struct {
	Topic   string // exchange-style
	Payload []byte
	Headers map[string]string
	Seq     uint64 // receipt order on this transport
}

// ISubscriber opens independent live streams of frames.
type ISubscriber interface {
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// Subscription is a live stream of frames for one topic.
//
// Unsubscribe is cooperative: once it returns no new frame enters the stream, but a
// frame that was already buffered can still be read by a consumer that has moved on.
// Consumers must treat such a late frame as a benign race.
type Subscription struct {
	topic   string
	frames  chan Frame
	release func(context.Context) error

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// NewSubscription is used by transports; release is called once on Unsubscribe.
func NewSubscription(topic string, buffer int, release func(context.Context) error) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscription{
		topic:   topic,
		frames:  make(chan Frame, buffer),
		release: release,
	}
}

func (s *Subscription) Topic() string { return s.topic }

// Frames is closed after Unsubscribe.
func (s *Subscription) Frames() <-chan Frame { return s.frames }

// Deliver hands a frame to the stream without blocking the caller. It reports false
// when the stream is closed or its buffer is full; the frame is then lost.
func (s *Subscription) Deliver(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// Unsubscribe closes the stream and releases the broker side. Calling it again is a no-op.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.shut()
	var err error
	s.once.Do(func() {
		if s.release != nil {
			err = s.release(ctx)
		}
	})
	return err
}
