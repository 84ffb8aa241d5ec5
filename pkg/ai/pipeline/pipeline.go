package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"research-flowstream/internal/pkg/logger"
	"research-flowstream/pkg/ai/generation"
	"research-flowstream/pkg/sse"
)

const logModule = "Pipeline"

var (
	// ErrConsumerGone means the stream consumer disconnected; nothing was saved.
	ErrConsumerGone = errors.New("stream consumer gone")
	// ErrPersistFailed means the writer finished but the report was not saved.
	ErrPersistFailed = errors.New("report persistence failed")
	// ErrWriterFailed means the writer stage produced no text.
	ErrWriterFailed = errors.New("writer stage failed")
)

// Run outcomes, used as the metrics label.
const (
	OutcomeCompleted     = "completed"
	OutcomePartial       = "partial"
	OutcomeWriterFailed  = "writer_failed"
	OutcomePersistFailed = "persist_failed"
	OutcomeConsumerGone  = "consumer_gone"
)

// Messages shown to stream consumers. Provider and store error text stays in the logs.
const (
	writerFailedMessage  = "The writer could not reach the generation service."
	persistFailedMessage = "The report could not be saved."
)

// Emitter is the outbound side of a job stream.
type Emitter interface {
	Emit(ctx context.Context, ev sse.Event) error
	Close(ctx context.Context) error
}

type Generator interface {
	GenerateText(ctx context.Context, p generation.Prompt, fb generation.Fallback) generation.Result
	StreamText(ctx context.Context, p generation.Prompt, simulated []string, fn func(fragment string) error) error
}

type ReportSaver interface {
	Save(ctx context.Context, id, text, title string) error
}

type Recorder interface {
	RunFinished(outcome string)
	StageFinished(stage string, d time.Duration)
	TokenStreamed()
}

type RunResult struct {
	ReportID          string
	Title             string
	Text              string
	ResearcherNotes   string
	AnalystNotes      string
	ResearcherOutcome generation.Outcome
	AnalystOutcome    generation.Outcome
	// Interrupted is set when the writer stream broke after producing text.
	Interrupted bool
	State       State
}

// Pipeline sequences researcher, analyst and writer for one topic at a time.
// It holds no per-run state, so one instance serves concurrent requests.
type Pipeline struct {
	gen      Generator
	saver    ReportSaver
	logger   logger.ILogger
	recorder Recorder
	tracer   trace.Tracer
	newID    func() string
}

func New(gen Generator, saver ReportSaver, log logger.ILogger, recorder Recorder) *Pipeline {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Pipeline{
		gen:      gen,
		saver:    saver,
		logger:   log,
		recorder: recorder,
		tracer:   otel.Tracer("research-flowstream/pipeline"),
		newID:    uuid.NewString,
	}
}

type run struct {
	p      *Pipeline
	ctx    context.Context
	em     Emitter
	result *RunResult
}

// Run executes one pipeline run and writes its events to em.
//
// On ErrConsumerGone nothing is saved and no close frame is written. On
// ErrWriterFailed and ErrPersistFailed an error event and the close frame
// are written and no final event is sent.
func (p *Pipeline) Run(ctx context.Context, topic string, em Emitter) (*RunResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.Int("topic.length", len(topic))))
	defer span.End()

	r := &run{p: p, ctx: ctx, em: em, result: &RunResult{Title: topic, State: StateIdle}}
	outcome, err := r.execute(topic)
	p.finish(outcome)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		p.logger.Warn(logModule, "Run ended early", map[string]interface{}{
			"outcome": outcome,
			"state":   r.result.State.String(),
			"error":   err,
		})
		return r.result, err
	}

	p.logger.Info(logModule, "Run completed", map[string]interface{}{
		"report_id":   r.result.ReportID,
		"outcome":     outcome,
		"text_length": len(r.result.Text),
	})
	return r.result, nil
}

func (r *run) execute(topic string) (string, error) {
	res := r.result

	researcher, err := r.singleShot(sse.StageResearcher, StateResearcherRunning, researcherPrompt(topic), researcherFallback(topic))
	if err != nil {
		return OutcomeConsumerGone, err
	}
	res.ResearcherNotes, res.ResearcherOutcome = researcher.Text, researcher.Outcome

	analyst, err := r.singleShot(sse.StageAnalyst, StateAnalystRunning, analystPrompt(res.ResearcherNotes), analystFallback())
	if err != nil {
		return OutcomeConsumerGone, err
	}
	res.AnalystNotes, res.AnalystOutcome = analyst.Text, analyst.Outcome

	if outcome, err := r.write(topic); err != nil {
		return outcome, err
	}

	if err := r.ctx.Err(); err != nil {
		return OutcomeConsumerGone, fmt.Errorf("%w: %w", ErrConsumerGone, err)
	}

	id := r.p.newID()
	started := time.Now()
	saveErr := r.p.saver.Save(r.ctx, id, res.Text, topic)
	r.p.stageFinished(sse.StagePersist, started)
	if saveErr != nil {
		if r.ctx.Err() != nil {
			return OutcomeConsumerGone, fmt.Errorf("%w: %w", ErrConsumerGone, r.ctx.Err())
		}
		r.p.logger.Error(logModule, "Failed to save report", map[string]interface{}{
			"report_id": id,
			"error":     saveErr,
		})
		if err := r.fail(sse.StagePersist, persistFailedMessage); err != nil {
			return OutcomeConsumerGone, err
		}
		return OutcomePersistFailed, fmt.Errorf("%w: %w", ErrPersistFailed, saveErr)
	}
	res.ReportID = id
	res.State.advance(StatePersisted)

	if err := r.emit(sse.FinalEvent(id, topic)); err != nil {
		return OutcomeConsumerGone, err
	}
	if err := r.close(); err != nil {
		return OutcomeConsumerGone, err
	}

	if res.Interrupted {
		return OutcomePartial, nil
	}
	return OutcomeCompleted, nil
}

func (r *run) singleShot(stage string, running State, prompt generation.Prompt, fb generation.Fallback) (generation.Result, error) {
	if err := r.emit(sse.StageEvent(stage, sse.PhaseStart)); err != nil {
		return generation.Result{}, err
	}
	r.result.State.advance(running)

	ctx, span := r.p.tracer.Start(r.ctx, "pipeline."+stage)
	started := time.Now()
	out := r.p.gen.GenerateText(ctx, prompt, fb)
	r.p.stageFinished(stage, started)
	span.SetAttributes(attribute.String("generation.outcome", string(out.Outcome)))
	span.End()

	r.result.State.advance(running + 1)
	if err := r.emit(sse.StageEvent(stage, sse.PhaseDone)); err != nil {
		return generation.Result{}, err
	}
	return out, nil
}

func (r *run) write(topic string) (string, error) {
	res := r.result
	if err := r.emit(sse.StageEvent(sse.StageWriter, sse.PhaseStart)); err != nil {
		return OutcomeConsumerGone, err
	}
	res.State.advance(StateWriterRunning)

	ctx, span := r.p.tracer.Start(r.ctx, "pipeline."+sse.StageWriter)
	started := time.Now()

	var text strings.Builder
	streamErr := r.p.gen.StreamText(ctx, writerPrompt(topic, res.ResearcherNotes, res.AnalystNotes), localDocument(topic), func(fragment string) error {
		if err := r.emit(sse.TokenEvent(fragment)); err != nil {
			return err
		}
		text.WriteString(fragment)
		if r.p.recorder != nil {
			r.p.recorder.TokenStreamed()
		}
		return nil
	})
	r.p.stageFinished(sse.StageWriter, started)
	span.SetAttributes(attribute.Int("writer.text_length", text.Len()))
	span.End()

	switch {
	case streamErr == nil:
	case errors.Is(streamErr, ErrConsumerGone):
		return OutcomeConsumerGone, streamErr
	case r.ctx.Err() != nil:
		return OutcomeConsumerGone, fmt.Errorf("%w: %w", ErrConsumerGone, r.ctx.Err())
	case errors.Is(streamErr, generation.ErrStreamInterrupted) && text.Len() > 0:
		r.p.logger.Warn(logModule, "Writer stream interrupted, keeping partial text", map[string]interface{}{
			"text_length": text.Len(),
			"error":       streamErr,
		})
		res.Interrupted = true
	default:
		if err := r.fail(sse.StageWriter, writerFailedMessage); err != nil {
			return OutcomeConsumerGone, err
		}
		return OutcomeWriterFailed, fmt.Errorf("%w: %w", ErrWriterFailed, streamErr)
	}

	res.Text = text.String()
	res.State.advance(StateWriterDone)
	if err := r.emit(sse.StageEvent(sse.StageWriter, sse.PhaseDone)); err != nil {
		return OutcomeConsumerGone, err
	}
	return "", nil
}

// fail reports a terminal stage error to the consumer and ends the stream.
func (r *run) fail(stage, message string) error {
	if err := r.emit(sse.ErrorEvent(stage, message)); err != nil {
		return err
	}
	return r.close()
}

func (r *run) emit(ev sse.Event) error {
	if err := r.em.Emit(r.ctx, ev); err != nil {
		return fmt.Errorf("%w: %w", ErrConsumerGone, err)
	}
	return nil
}

func (r *run) close() error {
	if err := r.em.Close(r.ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConsumerGone, err)
	}
	if r.result.State == StatePersisted {
		r.result.State.advance(StateClosed)
	}
	return nil
}

func (p *Pipeline) stageFinished(stage string, started time.Time) {
	if p.recorder != nil {
		p.recorder.StageFinished(stage, time.Since(started))
	}
}

func (p *Pipeline) finish(outcome string) {
	if p.recorder != nil {
		p.recorder.RunFinished(outcome)
	}
}
