package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-assistant/provisioner/internal/config"
)

func newTestOllama(t *testing.T, h http.Handler) *OllamaClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewOllamaClient(config.ModelConfig{
		URL:          srv.URL + "/",
		HealthPath:   "/api/tags",
		ProbeTimeout: 2 * time.Second,
		WarmupPrompt: "Reply with the single word: ready",
	}, NewProbeBreaker("ollama-"+t.Name()))
}

func TestPing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "no content", status: http.StatusNoContent},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
		{name: "not found", status: http.StatusNotFound, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/tags", r.URL.Path)
				w.WriteHeader(tc.status)
			}))

			err := c.Ping(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPing_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewOllamaClient(config.ModelConfig{URL: url, HealthPath: "/api/tags", ProbeTimeout: time.Second}, NewProbeBreaker(t.Name()))
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama at "+url)
}

func TestPing_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Ping(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModels(t *testing.T) {
	t.Parallel()

	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[
			{"name":"llama3.2:3b","size":2019393189,"digest":"a80c4f17acd5","modified_at":"2024-10-01T12:00:00Z"},
			{"name":"nomic-embed-text:latest","size":274302450,"digest":"0a109f422b47","modified_at":"2024-09-15T08:30:00Z"}
		]}`))
	}))

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)

	assert.Equal(t, "llama3.2:3b", models[0].Name)
	assert.Equal(t, int64(2019393189), models[0].Size)
	assert.Equal(t, "a80c4f17acd5", models[0].Digest)
	assert.Equal(t, time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC), models[0].ModifiedAt.UTC())
}

func TestModels_Empty(t *testing.T) {
	t.Parallel()

	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestModels_BadStatusAndBody(t *testing.T) {
	t.Parallel()

	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	_, err := c.Models(context.Background())
	assert.ErrorContains(t, err, "502")

	c = newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	_, err = c.Models(context.Background())
	assert.ErrorContains(t, err, "decoding model list")
}

func TestWarmup(t *testing.T) {
	t.Parallel()

	var gotModel, gotPrompt atomic.Value
	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel.Store(body.Model)
		if len(body.Messages) > 0 {
			gotPrompt.Store(body.Messages[0].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1727780000,"model":"llama3.2:3b",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ready"}}]}`))
	}))

	require.NoError(t, c.Warmup(context.Background(), "llama3.2:3b"))
	assert.Equal(t, "llama3.2:3b", gotModel.Load())
	assert.Equal(t, "Reply with the single word: ready", gotPrompt.Load())
}

func TestWarmup_NoChoices(t *testing.T) {
	t.Parallel()

	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))

	err := c.Warmup(context.Background(), "llama3.2:3b")
	assert.ErrorContains(t, err, "no choices")
}

func TestWarmup_ServerErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model \"llama3.2:3b\" not found","type":"api_error"}}`))
	}))

	err := c.Warmup(context.Background(), "llama3.2:3b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warming up llama3.2:3b")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWarmup_HungModelTimesOut(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := NewOllamaClient(config.ModelConfig{
		URL:           srv.URL,
		HealthPath:    "/api/tags",
		ProbeTimeout:  time.Second,
		WarmupPrompt:  "ready?",
		WarmupTimeout: 100 * time.Millisecond,
	}, NewProbeBreaker(t.Name()))

	start := time.Now()
	err := c.Warmup(context.Background(), "llama3.2:3b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warming up llama3.2:3b")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOllamaProbe(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	healthy.Store(true)
	c := newTestOllama(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))

	res := c.Probe(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, "ollama", res.Name)

	healthy.Store(false)
	for range 3 {
		res = c.Probe(context.Background())
		assert.False(t, res.OK)
	}
	res = c.Probe(context.Background())
	assert.Equal(t, "circuit open", res.Error)
}
