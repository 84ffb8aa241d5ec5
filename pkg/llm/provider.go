package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// DeltaHandler receives incremental content as it arrives. Returning an error
// stops the stream and the error is handed back unchanged.
type DeltaHandler func(delta string) error

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)

	// Stream sends a chat history and delivers the response incrementally.
	Stream(ctx context.Context, history []Message, onDelta DeltaHandler, options ...Option) error
}

// StreamPhase tells whether a streaming failure happened before the response
// body was available or while it was being read.
type StreamPhase string

const (
	PhaseConnect StreamPhase = "connect"
	PhaseRead    StreamPhase = "read"
)

type StreamError struct {
	Phase StreamPhase
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Phase, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsConnectFailure reports whether err is a stream failure that happened before
// any content could be read.
func IsConnectFailure(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Phase == PhaseConnect
}

// IsReadFailure reports whether err is a stream failure that happened after the
// stream was established.
func IsReadFailure(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Phase == PhaseRead
}

func ApplyOptions(defaults Options, opts ...Option) *Options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}
