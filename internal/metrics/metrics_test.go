package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsByLabel(t *testing.T) {
	r := NewRecorder()
	r.RunFinished("completed")
	r.RunFinished("completed")
	r.RunFinished("persist_failed")
	r.GenerationCall("researcher", "live")
	r.TokenStreamed()
	r.StageFinished("writer", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("persist_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.generationCalls.WithLabelValues("researcher", "live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tokens))

	err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(`
# HELP pipeline_tokens_total Token fragments streamed to clients.
# TYPE pipeline_tokens_total counter
pipeline_tokens_total 1
`), "pipeline_tokens_total")
	require.NoError(t, err)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RunFinished("completed")
		r.StageFinished("writer", time.Second)
		r.GenerationCall("analyst", "fallback_error")
		r.TokenStreamed()
	})
}
