package huggingface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_PooledAndTokenFeatures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []float32
	}{
		{"pooled", `[3, 4]`, []float32{0.6, 0.8}},
		{"token vectors are mean pooled", `[[2, 0], [4, 8]]`, []float32{0.6, 0.8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/"+DefaultModel, r.URL.Path)
				assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewProvider("hf-key", "", srv.Client()).WithBaseURL(srv.URL)
			vec, err := p.Embed(context.Background(), "hello")
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, vec, 1e-6)
		})
	}
}

func TestProvider_ErrorBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"loading"}`))
	}))
	defer srv.Close()

	_, err := NewProvider("", "", srv.Client()).WithBaseURL(srv.URL).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestDecodeFeatures_Rejects(t *testing.T) {
	_, err := decodeFeatures([]byte(`[]`))
	assert.Error(t, err)
	_, err = decodeFeatures([]byte(`[[1,2],[1]]`))
	assert.Error(t, err)
	_, err = decodeFeatures([]byte(`{"error":"x"}`))
	assert.Error(t, err)
}
