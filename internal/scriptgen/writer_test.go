package scriptgen

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer lm-studio", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "local",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestWriterSendsPromptAndNormalizes(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, "[A desert.]\nNarrator: “It’s hot…”\n", &req)
	defer srv.Close()

	w, err := NewWriter(Options{
		BaseURL:     srv.URL + "/v1",
		APIKey:      "lm-studio",
		Model:       "llama",
		Temperature: 0.7,
		Logger:      log.New(io.Discard),
	})
	require.NoError(t, err)

	out, err := w.Write(context.Background(), "Deserts are dry.")
	require.NoError(t, err)
	assert.Equal(t, "[A desert.]\nNarrator: \"It's hot...\"\n", out)

	assert.Equal(t, "llama", req["model"])
	assert.InDelta(t, 0.7, req["temperature"], 1e-9)
	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	system := msgs[0].(map[string]any)
	user := msgs[1].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, DefaultSystemPrompt, system["content"])
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, userPromptPrefix+"Deserts are dry.", user["content"])
}

func TestWriterRejectsEmptyScript(t *testing.T) {
	srv := chatServer(t, "   ", nil)
	defer srv.Close()

	w, err := NewWriter(Options{BaseURL: srv.URL + "/v1", APIKey: "lm-studio", Model: "llama", Logger: log.New(io.Discard)})
	require.NoError(t, err)
	_, err = w.Write(context.Background(), "x")
	require.Error(t, err)
}

func TestWriterSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded"}}`))
	}))
	defer srv.Close()

	w, err := NewWriter(Options{BaseURL: srv.URL + "/v1", APIKey: "lm-studio", Model: "llama", MaxRetries: 1, Logger: log.New(io.Discard)})
	require.NoError(t, err)
	_, err = w.Write(context.Background(), "x")
	require.Error(t, err)
}

func TestNewWriterRequiresModel(t *testing.T) {
	_, err := NewWriter(Options{})
	require.Error(t, err)
}

func TestWriterTimesOutOnHungEndpoint(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	w, err := NewWriter(Options{
		BaseURL:        srv.URL + "/v1",
		APIKey:         "lm-studio",
		Model:          "llama",
		MaxRetries:     1,
		RequestTimeout: 100 * time.Millisecond,
		Logger:         log.New(io.Discard),
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = w.Write(context.Background(), "x")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestNewWriterDefaultsRequestTimeout(t *testing.T) {
	w, err := NewWriter(Options{Model: "llama"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRequestTimeout, w.opts.RequestTimeout)
}
