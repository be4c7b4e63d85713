package binancefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"volumeSpikeBot/internal/ports"
)

// State is the lifecycle state of one physical connection.
type State int

const (
	Connecting State = iota
	Connected
	Backoff
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Backoff:
		return "BACKOFF"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type event int

const (
	evDialed event = iota
	evDialFailed
	evDisconnected
	evBackoffElapsed
	evStop
)

// transition is the connection state machine. Stopped is terminal and a stop
// event wins from any state.
func transition(s State, ev event) State {
	if s == Stopped || ev == evStop {
		return Stopped
	}
	switch s {
	case Connecting:
		switch ev {
		case evDialed:
			return Connected
		case evDialFailed:
			return Backoff
		}
	case Connected:
		if ev == evDisconnected {
			return Backoff
		}
	case Backoff:
		if ev == evBackoffElapsed {
			return Connecting
		}
	}
	return s
}

// Conn is one combined-stream websocket connection.
type Conn struct {
	id      int
	url     string
	streams []string
	handler ports.KlineHandler
	cfg     Config

	mu    sync.RWMutex
	state State
}

func newConn(id int, cfg Config, streams []string, handler ports.KlineHandler) *Conn {
	return &Conn{
		id:      id,
		url:     cfg.BaseURL + "/stream?streams=" + strings.Join(streams, "/"),
		streams: streams,
		handler: handler,
		cfg:     cfg,
		state:   Connecting,
	}
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) fire(ev event) State {
	c.mu.Lock()
	prev := c.state
	next := transition(prev, ev)
	c.state = next
	c.mu.Unlock()

	if next != prev && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(c.id, next)
	}
	return next
}

// Run drives the state machine until ctx is done.
func (c *Conn) Run(ctx context.Context) {
	fields := map[string]interface{}{"conn": c.id, "streams": len(c.streams)}
	var ws *websocket.Conn

	for {
		if ctx.Err() != nil {
			c.fire(evStop)
		}

		switch c.State() {
		case Stopped:
			return

		case Connecting:
			conn, _, err := c.cfg.Dialer.DialContext(ctx, c.url, nil)
			if err != nil {
				c.cfg.Logger.Warn(ctx, "Feed connection failed", mergeFields(fields, map[string]interface{}{
					"error": fmt.Errorf("%w: %w", ports.ErrFeed, err).Error(),
				}))
				c.fire(evDialFailed)
				continue
			}
			ws = conn
			c.cfg.Metrics.FeedConnectionUp()
			c.cfg.Logger.Info(ctx, "Feed connected", fields)
			c.fire(evDialed)

		case Connected:
			err := c.consume(ctx, ws)
			_ = ws.Close()
			ws = nil
			c.cfg.Metrics.FeedConnectionDown()
			if ctx.Err() != nil {
				c.fire(evStop)
				continue
			}
			c.cfg.Logger.Warn(ctx, "Feed disconnected", mergeFields(fields, map[string]interface{}{
				"error":   err.Error(),
				"backoff": c.cfg.Backoff.String(),
			}))
			c.fire(evDisconnected)

		case Backoff:
			timer := time.NewTimer(c.cfg.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.fire(evStop)
			case <-timer.C:
				c.cfg.Metrics.FeedReconnect()
				c.fire(evBackoffElapsed)
			}
		}
	}
}

func (c *Conn) consume(ctx context.Context, ws *websocket.Conn) error {
	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = ws.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: read: %w", ports.ErrFeed, err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		k, err := parseMessage(msg)
		if err != nil {
			c.cfg.Logger.Warn(ctx, "Dropping malformed feed message", map[string]interface{}{
				"conn":  c.id,
				"error": err.Error(),
			})
			continue
		}
		if k == nil {
			continue
		}
		c.handler(k)
	}
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
