package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingEvery  = feedPongWait * 9 / 10
	feedQueueDepth = 16
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// MapMessage is the envelope pushed to map feed viewers.
type MapMessage struct {
	Event   string  `json:"event"`
	Version uint64  `json:"version"`
	Layers  []Layer `json:"layers"`
}

// MapFeed streams the canvas to WebSocket viewers: a full snapshot on connect, then
// a new one on every poll that finds the canvas version moved.
//
// A viewer's queue is never closed. Leaving is signalled on gone, which is closed
// under mu, and every push to a queue happens under mu's read lock.
type MapFeed struct {
	canvas *MemoryCanvas
	every  time.Duration
	logger *zap.Logger

	mu      sync.RWMutex
	viewers map[*viewer]struct{}
	closed  bool

	sent uint64 // last version pushed; touched by Run only
}

type viewer struct {
	conn  *websocket.Conn
	queue chan []byte
	gone  chan struct{}
}

func NewMapFeed(c *MemoryCanvas, every time.Duration, logger *zap.Logger) *MapFeed {
	if every <= 0 {
		every = 250 * time.Millisecond
	}
	return &MapFeed{
		canvas:  c,
		every:   every,
		logger:  logger,
		viewers: make(map[*viewer]struct{}),
	}
}

// Run polls the canvas until ctx is done, then disconnects every viewer.
func (f *MapFeed) Run(ctx context.Context) {
	t := time.NewTicker(f.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			f.shutdown()
			return
		case <-t.C:
			if f.canvas.Version() != f.sent {
				f.push()
			}
		}
	}
}

func (f *MapFeed) Viewers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.viewers)
}

func (f *MapFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	v := &viewer{conn: conn, queue: make(chan []byte, feedQueueDepth), gone: make(chan struct{})}
	if !f.attach(v) {
		conn.Close()
		return
	}
	defer f.detach(v)

	if msg, _, err := f.snapshot(); err == nil {
		select {
		case v.queue <- msg:
		default: // pushes since attach already carry newer layers
		}
	}
	go v.write()
	v.read()
}

func (f *MapFeed) attach(v *viewer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.viewers[v] = struct{}{}
	return true
}

// detach removes v and signals its writer. Safe to call more than once.
func (f *MapFeed) detach(v *viewer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.viewers[v]; ok {
		delete(f.viewers, v)
		close(v.gone)
	}
}

func (f *MapFeed) shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for v := range f.viewers {
		delete(f.viewers, v)
		close(v.gone)
	}
}

func (f *MapFeed) push() {
	msg, version, err := f.snapshot()
	if err != nil {
		f.logger.Error("map snapshot encode failed", zap.Error(err))
		return
	}
	f.sent = version

	var lagging []*viewer
	f.mu.RLock()
	for vw := range f.viewers {
		select {
		case vw.queue <- msg:
		default:
			lagging = append(lagging, vw)
		}
	}
	f.mu.RUnlock()

	for _, vw := range lagging {
		f.logger.Warn("map viewer lagging, disconnecting")
		f.detach(vw)
	}
}

func (f *MapFeed) snapshot() ([]byte, uint64, error) {
	layers, version := f.canvas.Snapshot()
	b, err := json.Marshal(MapMessage{Event: "layers", Version: version, Layers: layers})
	return b, version, err
}

func (v *viewer) write() {
	ping := time.NewTicker(feedPingEvery)
	defer func() {
		ping.Stop()
		v.conn.Close()
	}()
	for {
		select {
		case msg := <-v.queue:
			_ = v.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-v.gone:
			_ = v.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			_ = v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// read discards client messages; it only keeps the pong deadline moving and notices
// the connection going away.
func (v *viewer) read() {
	defer v.conn.Close()
	v.conn.SetReadLimit(512)
	_ = v.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}
