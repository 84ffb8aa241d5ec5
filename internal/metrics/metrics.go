package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the pipeline collectors and the registry they live in.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	runs            *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	generationCalls *prometheus.CounterVec
	tokens          prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by terminal outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		generationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "generation_calls_total",
			Help: "Generation calls by stage and result (live, fallback_disabled, fallback_error).",
		}, []string{"stage", "outcome"}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_tokens_total",
			Help: "Token fragments streamed to clients.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.runs, r.stageDuration, r.generationCalls, r.tokens,
	)
	return r
}

func (r *Recorder) RunFinished(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}

func (r *Recorder) StageFinished(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) GenerationCall(stage, outcome string) {
	if r == nil {
		return
	}
	r.generationCalls.WithLabelValues(stage, outcome).Inc()
}

func (r *Recorder) TokenStreamed() {
	if r == nil {
		return
	}
	r.tokens.Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
