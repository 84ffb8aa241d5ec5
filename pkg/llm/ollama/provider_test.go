package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"research-flowstream/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_ReadsNDJSONUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "assistant", req.Messages[1].Role)

		io.WriteString(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`+"\n")
		io.WriteString(w, "not json\n\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":"ignored"},"done":false}`+"\n")
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", srv.Client())
	var got strings.Builder
	err := p.Stream(context.Background(), []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "model", Content: "earlier answer"},
	}, func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.String())
}

func TestStream_ErrorStatusIsConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewOllamaProvider(srv.URL, "missing", nil).Stream(context.Background(), nil, func(string) error { return nil })
	require.Error(t, err)
	assert.True(t, llm.IsConnectFailure(err))
}

func TestChat_ReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.InDelta(t, 0.5, req.Options.Temperature, 1e-9)
		io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":"notes"},"done":true}`)
	}))
	defer srv.Close()

	out, err := NewOllamaProvider(srv.URL, "llama3", nil).Chat(context.Background(),
		[]llm.Message{{Role: "user", Content: "x"}}, llm.WithTemperature(0.5))
	require.NoError(t, err)
	assert.Equal(t, "notes", out)
}
