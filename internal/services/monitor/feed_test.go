package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serveFeed(t *testing.T, c *MemoryCanvas, every time.Duration) (string, *MapFeed, context.CancelFunc) {
	t.Helper()
	feed := NewMapFeed(c, every, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go feed.Run(ctx)
	srv := httptest.NewServer(feed)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), feed, cancel
}

func dialFeed(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMap(t *testing.T, conn *websocket.Conn) MapMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg MapMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestMapFeed_SnapshotOnConnectThenChanges(t *testing.T) {
	c := NewMemoryCanvas()
	m := NewMapLayerManager(c)
	m.Draw(lift("a"), Visual{Color: ColorRed, Weight: 7})

	url, feed, _ := serveFeed(t, c, 20*time.Millisecond)
	conn := dialFeed(t, url)

	first := readMap(t, conn)
	assert.Equal(t, "layers", first.Event)
	assert.Equal(t, c.Version(), first.Version)
	assert.Equal(t, 1, linesFor(first.Layers, "a"))
	require.Eventually(t, func() bool { return feed.Viewers() == 1 }, time.Second, 5*time.Millisecond)

	m.Draw(lift("b"), Visual{Color: ColorOrange, Weight: 3})
	var next MapMessage
	for next.Version <= first.Version {
		next = readMap(t, conn)
	}
	assert.Equal(t, 1, linesFor(next.Layers, "a"))
	assert.Equal(t, 1, linesFor(next.Layers, "b"))
}

func TestMapFeed_ViewerLeaves(t *testing.T) {
	url, feed, _ := serveFeed(t, NewMemoryCanvas(), 20*time.Millisecond)
	conn := dialFeed(t, url)
	readMap(t, conn)
	require.Eventually(t, func() bool { return feed.Viewers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return feed.Viewers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestMapFeed_ShutdownClosesViewers(t *testing.T) {
	url, feed, cancel := serveFeed(t, NewMemoryCanvas(), 20*time.Millisecond)
	conn := dialFeed(t, url)
	readMap(t, conn)
	require.Eventually(t, func() bool { return feed.Viewers() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, feed.Viewers())

	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		defer late.Close()
		require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err = late.ReadMessage()
		assert.Error(t, err, "no snapshot after shutdown")
	}
	assert.Equal(t, 0, feed.Viewers())
}

// Viewers connecting and leaving while the canvas changes every tick must never
// make a push hit a viewer that is already gone.
func TestMapFeed_ViewerChurnWhileDrawing(t *testing.T) {
	c := NewMemoryCanvas()
	m := NewMapLayerManager(c)
	url, feed, _ := serveFeed(t, c, time.Millisecond)

	stop := make(chan struct{})
	drawing := make(chan struct{})
	go func() {
		defer close(drawing)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			m.Draw(lift(fmt.Sprintf("l%d", i%5)), Visual{Color: ColorRed, Weight: i%9 + 1})
			time.Sleep(200 * time.Microsecond)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				conn, _, err := websocket.DefaultDialer.Dial(url, nil)
				if !assert.NoError(t, err) {
					return
				}
				_ = conn.SetReadDeadline(time.Now().Add(time.Second))
				_, _, err = conn.ReadMessage()
				assert.NoError(t, err)
				if j%2 == 0 {
					// leave while pushes are in flight
					_, _, _ = conn.ReadMessage()
				}
				conn.Close()
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-drawing

	assert.Eventually(t, func() bool { return feed.Viewers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
