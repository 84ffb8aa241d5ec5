package generation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"research-flowstream/internal/pkg/logger"
	"research-flowstream/pkg/llm"
)

const logModule = "Generation"

type Outcome string

const (
	OutcomeLive             Outcome = "live"
	OutcomeFallbackDisabled Outcome = "fallback_disabled"
	OutcomeFallbackError    Outcome = "fallback_error"

	// outcomeStreamError only labels metrics; streaming failures are returned as errors.
	outcomeStreamError Outcome = "stream_error"
)

var (
	// ErrStreamUnavailable means the live stream could not be established.
	ErrStreamUnavailable = errors.New("generation stream unavailable")
	// ErrStreamInterrupted means an established stream broke before its end sentinel.
	ErrStreamInterrupted = errors.New("generation stream interrupted")
)

const (
	DefaultChunkSize  = 20
	DefaultLocalDelay = 15 * time.Millisecond
)

type Prompt struct {
	Stage       string
	System      string
	User        string
	Temperature float64
}

// Fallback holds the stage-specific substitutes for single-shot calls.
type Fallback struct {
	Disabled string
	Error    string
}

// Result reports which path produced Text. Err is set only for OutcomeFallbackError.
type Result struct {
	Text    string
	Outcome Outcome
	Err     error
}

func (r Result) Recovered() bool {
	return r.Outcome != OutcomeLive
}

// Recorder receives one observation per generation call.
type Recorder interface {
	GenerationCall(stage, outcome string)
}

type Config struct {
	Disabled   bool
	ChunkSize  int
	LocalDelay time.Duration
}

// Client is safe for concurrent use by independent pipeline runs.
type Client struct {
	provider llm.LLMProvider
	cfg      Config
	logger   logger.ILogger
	recorder Recorder
}

func NewClient(provider llm.LLMProvider, cfg Config, log logger.ILogger, recorder Recorder) *Client {
	if provider == nil {
		cfg.Disabled = true
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.LocalDelay < 0 {
		cfg.LocalDelay = 0
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		logger:   log,
		recorder: recorder,
	}
}

func (c *Client) Disabled() bool {
	return c.cfg.Disabled
}

func (c *Client) record(stage string, outcome Outcome) {
	if c.recorder != nil {
		c.recorder.GenerationCall(stage, string(outcome))
	}
}

func messages(p Prompt) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}
}

// GenerateText never fails: a disabled client or a failed call yields the
// matching fallback text, and the Outcome says which one was used.
func (c *Client) GenerateText(ctx context.Context, p Prompt, fb Fallback) Result {
	if c.cfg.Disabled {
		c.record(p.Stage, OutcomeFallbackDisabled)
		return Result{Text: fb.Disabled, Outcome: OutcomeFallbackDisabled}
	}

	text, err := c.provider.Chat(ctx, messages(p), llm.WithTemperature(p.Temperature))
	if err != nil {
		c.logger.Warn(logModule, "Completion failed, using fallback", map[string]interface{}{
			"stage": p.Stage,
			"error": err,
		})
		c.record(p.Stage, OutcomeFallbackError)
		return Result{Text: fb.Error, Outcome: OutcomeFallbackError, Err: err}
	}

	c.record(p.Stage, OutcomeLive)
	return Result{Text: text, Outcome: OutcomeLive}
}

// StreamText delivers the response as fragments of at most ChunkSize runes.
// When disabled it replays simulated, pacing fragments by LocalDelay.
// Errors returned by fn and context errors are returned unchanged; provider
// failures are wrapped in ErrStreamUnavailable or ErrStreamInterrupted.
func (c *Client) StreamText(ctx context.Context, p Prompt, simulated []string, fn func(fragment string) error) error {
	if c.cfg.Disabled {
		c.record(p.Stage, OutcomeFallbackDisabled)
		return c.simulate(ctx, simulated, fn)
	}

	err := c.provider.Stream(ctx, messages(p), func(delta string) error {
		for _, fragment := range Chunk(delta, c.cfg.ChunkSize) {
			if err := fn(fragment); err != nil {
				return err
			}
		}
		return nil
	}, llm.WithTemperature(p.Temperature))

	switch {
	case err == nil:
		c.record(p.Stage, OutcomeLive)
		return nil
	case llm.IsConnectFailure(err):
		c.record(p.Stage, outcomeStreamError)
		c.logger.Error(logModule, "Stream could not be established", map[string]interface{}{
			"stage": p.Stage,
			"error": err,
		})
		return fmt.Errorf("%w: %w", ErrStreamUnavailable, err)
	case llm.IsReadFailure(err):
		c.record(p.Stage, outcomeStreamError)
		c.logger.Warn(logModule, "Stream interrupted", map[string]interface{}{
			"stage": p.Stage,
			"error": err,
		})
		return fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
	default:
		return err
	}
}

func (c *Client) simulate(ctx context.Context, pieces []string, fn func(string) error) error {
	var timer *time.Timer
	if c.cfg.LocalDelay > 0 {
		timer = time.NewTimer(c.cfg.LocalDelay)
		defer timer.Stop()
	}

	for _, piece := range pieces {
		for _, fragment := range Chunk(piece, c.cfg.ChunkSize) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(fragment); err != nil {
				return err
			}
			if timer == nil {
				continue
			}
			timer.Reset(c.cfg.LocalDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// Chunk splits text into pieces of at most n runes without breaking a
// multi-byte character. Concatenating the result yields text.
func Chunk(text string, n int) []string {
	if text == "" {
		return nil
	}
	if n <= 0 {
		return []string{text}
	}

	out := make([]string, 0, utf8.RuneCountInString(text)/n+1)
	start, count := 0, 0
	for i := range text {
		if count == n {
			out = append(out, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(out, text[start:])
}
