package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edujam/pkg/interfaces"
)

func TestNewOpenAIResponder_Defaults(t *testing.T) {
	_, err := NewOpenAIResponder(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	r, err := NewOpenAIResponder(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, r.cfg.Model)
	assert.Equal(t, DefaultMaxTokens, r.cfg.MaxTokens)
	assert.Equal(t, DefaultEndpoint, r.cfg.Endpoint)
}

func TestOpenAIResponder_Complete(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  A derivative measures change.  "}}]}`))
	}))
	defer srv.Close()

	r, err := NewOpenAIResponder(Config{Endpoint: srv.URL, APIKey: "test-key", Temperature: DefaultTemperature})
	require.NoError(t, err)

	reply, err := r.Complete(context.Background(), "What is a derivative?")
	require.NoError(t, err)
	assert.Equal(t, "A derivative measures change.", reply)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, chatMessage{Role: "user", Content: "What is a derivative?"}, got.Messages[0])
}

func TestOpenAIResponder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	r, _ := NewOpenAIResponder(Config{Endpoint: srv.URL, APIKey: "k"})
	_, err := r.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestOpenAIResponder_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	r, _ := NewOpenAIResponder(Config{Endpoint: srv.URL, APIKey: "k"})
	_, err := r.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestOpenAIResponder_ContextCancelled(t *testing.T) {
	r, _ := NewOpenAIResponder(Config{Endpoint: "http://127.0.0.1:1", APIKey: "k"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Complete(ctx, "hi")
	assert.Error(t, err)
}

func TestStaticResponder(t *testing.T) {
	var responder interfaces.AIResponder = StaticResponder{Reply: "ok"}
	reply, err := responder.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	boom := errors.New("boom")
	_, err = StaticResponder{Err: boom}.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}
