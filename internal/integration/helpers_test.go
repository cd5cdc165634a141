package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"edujam/internal/app"
	"edujam/internal/auth"
	"edujam/internal/config"
)

const (
	jwtSecret   = "integration-secret"
	readTimeout = 5 * time.Second
)

type server struct {
	app    *app.Application
	signer *auth.JWTVerifier
}

// startServer runs a full application on an ephemeral port with a fake
// completion endpoint that always answers tutorReply
func startServer(t *testing.T, tutorReply string) *server {
	t.Helper()

	tutor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": tutorReply}},
			},
		})
	}))
	t.Cleanup(tutor.Close)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(dir, "chat.db")
	cfg.Storage.Dir = filepath.Join(dir, "files")
	cfg.Auth.JWTSecret = jwtSecret
	cfg.AI.APIKey = "test-key"
	cfg.AI.Endpoint = tutor.URL

	application, err := app.NewApplication(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, application.Start(ctx))
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = application.Stop(stopCtx)
		cancel()
	})

	signer, err := auth.NewJWTVerifier(jwtSecret, "")
	require.NoError(t, err)
	return &server{app: application, signer: signer}
}

func (s *server) url(scheme, path string) string {
	return scheme + "://" + s.app.Addr() + path
}

func (s *server) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.signer.Sign(userID, userID+"@school.test", time.Hour)
	require.NoError(t, err)
	return token
}

func (s *server) getJSON(t *testing.T, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(s.url("http", path))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

// dial opens a channel connection, authenticated when token is non-empty
func (s *server) dial(t *testing.T, path, token string) *client {
	t.Helper()
	target := s.url("ws", path)
	if token != "" {
		target += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(v interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func (c *client) sendBinary(data []byte) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.BinaryMessage, data))
}

// expect reads frames until one of eventType arrives and decodes it into v.
// Frames of other types are skipped.
func (c *client) expect(eventType string, v interface{}) {
	c.t.Helper()
	deadline := time.Now().Add(readTimeout)
	var seen []string
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %q, saw %s", eventType, strings.Join(seen, ", "))

		var envelope struct {
			Type string `json:"type"`
		}
		require.NoError(c.t, json.Unmarshal(data, &envelope))
		if envelope.Type != eventType {
			seen = append(seen, envelope.Type)
			continue
		}
		if v != nil {
			require.NoError(c.t, json.Unmarshal(data, v))
		}
		return
	}
}

// closed reports whether the server ends the connection within the read timeout
func (c *client) closed() bool {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return false
			}
			return true
		}
	}
}
