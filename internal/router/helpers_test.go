package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"edujam/internal/hub"
	"edujam/internal/metrics"
	"edujam/internal/room"
	"edujam/internal/session"
	"edujam/pkg/interfaces"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeConn records every frame written to it
type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// tags returns the type tag of every frame in order
func (c *fakeConn) tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

// last decodes the most recent frame tagged eventType into v
func (c *fakeConn) last(t *testing.T, eventType string, v interface{}) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(c.frames[i], &env))
		if env.Type == eventType {
			require.NoError(t, json.Unmarshal(c.frames[i], v))
			return
		}
	}
	require.Failf(t, "event not received", "no %q frame among %d frames", eventType, len(c.frames))
}

func (c *fakeConn) count(eventType string) int {
	n := 0
	for _, typ := range c.tags() {
		if typ == eventType {
			n++
		}
	}
	return n
}

// lastError returns the message of the most recent error frame, or ""
func (c *fakeConn) lastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		var ev struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if json.Unmarshal(c.frames[i], &ev) == nil && ev.Type == "error" {
			return ev.Message
		}
	}
	return ""
}

type frameDispatcher interface {
	Dispatch(ctx context.Context, sessionID string, frame []byte)
}

func newTestHub(channel string) *hub.Hub {
	return hub.New(channel, session.NewRegistry(channel), room.NewDirectory(channel), metrics.New())
}

// connect registers a live session on h
func connect(t *testing.T, h *hub.Hub, sessionID, userID string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	require.NoError(t, h.Register(session.New(sessionID, conn, interfaces.Identity{UserID: userID})))
	return conn
}

// send marshals cmd and dispatches it as sessionID
func send(t *testing.T, d frameDispatcher, sessionID string, cmd map[string]interface{}) {
	t.Helper()
	frame, err := json.Marshal(cmd)
	require.NoError(t, err)
	d.Dispatch(context.Background(), sessionID, frame)
}
