package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edujam/internal/api"
	"edujam/internal/config"
	"edujam/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(dir, "data", "chat.db")
	cfg.Storage.Dir = filepath.Join(dir, "files")
	return cfg
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"negative port", func(c *config.Config) { c.HTTP.Port = -1 }},
		{"empty db path", func(c *config.Config) { c.Database.Path = "" }},
		{"zero db timeout", func(c *config.Config) { c.Database.Timeout = 0 }},
		{"missing section", func(c *config.Config) { c.Groups = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)

			application, err := NewApplication(cfg)
			require.Error(t, err)
			assert.Nil(t, application)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestNewApplication_CreatesDatabaseDirectory(t *testing.T) {
	cfg := testConfig(t)

	application, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.dbManager.Close() })

	_, err = os.Stat(filepath.Dir(cfg.Database.Path))
	assert.NoError(t, err)
	_, err = os.Stat(cfg.Storage.Dir)
	assert.NoError(t, err)
}

func TestNewApplication_OfflineDefaults(t *testing.T) {
	assert.Nil(t, mustVerifier(t, &config.AuthConfig{}), "no secret means anonymous connections")
	assert.NotNil(t, mustVerifier(t, &config.AuthConfig{JWTSecret: "s3cret", Issuer: "edujam"}))

	responder, err := newResponder(config.DefaultConfig().AI)
	require.NoError(t, err)
	reply, err := responder.Complete(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, OfflineTutorReply, reply)
}

func mustVerifier(t *testing.T, cfg *config.AuthConfig) interface{} {
	t.Helper()
	v, err := newVerifier(cfg)
	require.NoError(t, err)
	if v == nil {
		return nil
	}
	return v
}

func TestApplication_HandlerServesWithoutListener(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.dbManager.Close() })

	w := httptest.NewRecorder()
	application.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/study-groups/subjects", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.SubjectsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.Subjects, resp.Subjects)
}

func TestApplication_StartAndStop(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, application.Start(ctx))
	assert.NotEqual(t, "127.0.0.1:0", application.Addr(), "bound address replaces the ephemeral port")

	resp, err := http.Get("http://" + application.Addr() + "/health")
	require.NoError(t, err)
	var health api.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Channels, 3)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, application.Stop(stopCtx))

	_, err = http.Get("http://" + application.Addr() + "/health")
	assert.Error(t, err, "listener is closed after Stop")
}

func TestApplication_StartFailsOnBusyAddress(t *testing.T) {
	first, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, first.Start(ctx))
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	_, portText, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.HTTP.Port = port
	second, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.dbManager.Close() })

	err = second.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.False(t, second.sweeper.IsRunning(), "sweeper is rolled back")
}
