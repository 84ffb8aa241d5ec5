package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"research-flowstream/pkg/client"
	"research-flowstream/pkg/sse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n\n b\tc "))

	long := strings.Repeat("é", previewLength+10)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), previewLength+3)
}

func TestRunStream_WritesMarkdownFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, ev := range []sse.Event{
			sse.StageEvent(sse.StageWriter, sse.PhaseStart),
			sse.TokenEvent("## topic\n"),
			sse.TokenEvent("text"),
			sse.StageEvent(sse.StageWriter, sse.PhaseDone),
			sse.FinalEvent("r-1", "topic"),
			sse.CloseEvent(),
		} {
			frame, err := sse.Encode(ev)
			require.NoError(t, err)
			w.Write(frame)
		}
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, runStream(context.Background(), client.New(srv.URL, nil), "topic", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "## topic\ntext", string(data))
}
