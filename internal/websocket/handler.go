package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"edujam/internal/auth"
	"edujam/internal/hub"
	"edujam/internal/metrics"
	"edujam/internal/session"
	"edujam/pkg/interfaces"
)

// Default read-side tuning
const (
	DefaultReadTimeout    = 60 * time.Second
	DefaultMaxMessageSize = 1 << 20
)

// Dispatcher handles one inbound text frame for a session
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, frame []byte)
}

// BinaryDispatcher is implemented by channels that accept binary frames
type BinaryDispatcher interface {
	DispatchBinary(ctx context.Context, sessionID string, data []byte)
}

// HandlerOptions tunes a channel endpoint
type HandlerOptions struct {
	Connection     Options
	ReadTimeout    time.Duration // reset by every inbound frame and pong
	MaxMessageSize int64
}

// Handler upgrades requests on one channel and runs each connection's read loop
// ARCHITECTURAL DISCOVERY: Multi-stage setup (token -> upgrade -> register -> read loop)
// rejects bad credentials with a plain HTTP status before any socket exists
type Handler struct {
	hub        *hub.Hub
	dispatcher Dispatcher
	verifier   interfaces.AuthVerifier
	opts       HandlerOptions
	upgrader   websocket.Upgrader
}

// NewHandler creates a channel endpoint. verifier may be nil, in which case
// every connection is anonymous.
func NewHandler(h *hub.Hub, d Dispatcher, verifier interfaces.AuthVerifier, opts HandlerOptions) (*Handler, error) {
	if h == nil {
		return nil, ErrNilHub
	}
	if d == nil {
		return nil, ErrNilDispatcher
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}

	return &Handler{
		hub:        h,
		dispatcher: d,
		verifier:   verifier,
		opts:       opts,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Origin policy lives in the HTTP CORS layer;
			// browsers on any configured front end must be able to connect
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// ServeHTTP performs the handshake and starts the connection goroutine
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		log.Printf("[%s] Rejected handshake from %s: %v", h.hub.Channel(), r.RemoteAddr, err)
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[%s] WebSocket upgrade failed: %v", h.hub.Channel(), err)
		return
	}

	wsConn := NewConnection(conn, h.opts.Connection)
	sess := session.New("", wsConn, identity)
	if err := h.hub.Register(sess); err != nil {
		log.Printf("[%s] Failed to register session: %v", h.hub.Channel(), err)
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(sess, wsConn)
}

// authenticate resolves the request token. A missing token yields an
// anonymous identity; a present but invalid one is an error.
func (h *Handler) authenticate(r *http.Request) (interfaces.Identity, error) {
	token := auth.TokenFromRequest(r)
	if token == "" || h.verifier == nil {
		return interfaces.Identity{}, nil
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, interfaces.ErrExpiredToken) {
			return interfaces.Identity{}, err
		}
		return interfaces.Identity{}, interfaces.ErrInvalidToken
	}
	return identity, nil
}

// handleConnection owns the read side of one connection until it ends
// ARCHITECTURAL DISCOVERY: Frames from one connection are dispatched
// sequentially on this goroutine, so each session's commands apply in the
// order it sent them while other connections proceed in parallel
func (h *Handler) handleConnection(sess *session.Session, conn *Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures resources are released
		// even if dispatch panics; Evict is idempotent with the sweeper's path
		cancel()
		h.hub.Evict(sess.ID, metrics.ReasonDisconnect)
		_ = conn.Close()
	}()

	log.Printf("[%s] Connection opened: session=%s user=%s remote=%s",
		h.hub.Channel(), sess.ID, sess.UserID(), conn.RemoteAddr())

	ws := conn.conn
	ws.SetReadLimit(h.opts.MaxMessageSize)
	extend := func() error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	}
	if err := extend(); err != nil {
		log.Printf("[%s] Failed to set read deadline: %v", h.hub.Channel(), err)
		return
	}
	ws.SetPongHandler(func(string) error { return extend() })

	binary, acceptsBinary := h.dispatcher.(BinaryDispatcher)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[%s] WebSocket error: session=%s err=%v", h.hub.Channel(), sess.ID, err)
			}
			return
		}
		if err := extend(); err != nil {
			return
		}
		h.hub.Sessions().Touch(sess.ID)

		switch messageType {
		case websocket.TextMessage:
			h.dispatcher.Dispatch(ctx, sess.ID, data)
		case websocket.BinaryMessage:
			if acceptsBinary {
				binary.DispatchBinary(ctx, sess.ID, data)
			}
		}
	}
}
