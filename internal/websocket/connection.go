package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default transport tuning, overridable through Options
const (
	DefaultBufferSize   = 100
	DefaultWriteTimeout = 5 * time.Second
)

// Options tunes one connection's outbound queue
type Options struct {
	BufferSize   int           // queued frames before Send blocks
	WriteTimeout time.Duration // per-frame socket deadline and enqueue wait
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps conn and starts its writer goroutine
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, opts.BufferSize),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
// TECHNICAL DISCOVERY: writeCh is never closed; senders select on ctx instead,
// so a Send racing with shutdown returns ErrConnectionClosed rather than panicking
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// FUNCTIONAL DISCOVERY: A failed write poisons the socket; closing
				// here makes every later Send report the failure to its caller
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues an already serialized text frame
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(c.opts.WriteTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Ping writes a ping control frame
// TECHNICAL DISCOVERY: gorilla allows WriteControl concurrently with the
// writer goroutine, so probes bypass the data queue and cannot be starved by it
func (c *Connection) Ping() error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// RemoteAddr returns the peer address for logging
func (c *Connection) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
