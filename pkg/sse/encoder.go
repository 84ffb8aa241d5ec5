package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

const ContentType = "text/event-stream"

var dataPrefix = []byte("data: ")

// CloseFrame terminates a job stream.
var CloseFrame = []byte("event: close\ndata: done\n\n")

// marshal encodes without HTML escaping so fragments such as "<b>" or "&"
// reach the consumer byte for byte.
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Marshal renders ev as bare JSON for transports that frame messages
// themselves. Unlike Encode, a close event is marshaled like any other.
func Marshal(ev Event) ([]byte, error) {
	if ev.Kind == "" {
		return nil, fmt.Errorf("sse: event kind is required")
	}
	return marshal(ev)
}

// Encode renders ev as a single self-delimited `data: <json>\n\n` frame.
func Encode(ev Event) ([]byte, error) {
	if ev.Kind == "" {
		return nil, fmt.Errorf("sse: event kind is required")
	}
	if ev.Kind == KindClose {
		return CloseFrame, nil
	}
	payload, err := marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s event: %w", ev.Kind, err)
	}
	frame := make([]byte, 0, len(dataPrefix)+len(payload)+2)
	frame = append(frame, dataPrefix...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// Writer pushes frames onto a stream and flushes after every one of them.
type Writer struct {
	w     io.Writer
	flush func() error
}

// NewWriter wraps w. flush may be nil when w is unbuffered.
func NewWriter(w io.Writer, flush func() error) *Writer {
	return &Writer{w: w, flush: flush}
}

func (sw *Writer) Emit(ctx context.Context, ev Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	return sw.write(ctx, frame)
}

// Close writes the close frame.
func (sw *Writer) Close(ctx context.Context) error {
	return sw.write(ctx, CloseFrame)
}

func (sw *Writer) write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := sw.w.Write(frame); err != nil {
		return fmt.Errorf("sse: write frame: %w", err)
	}
	if sw.flush != nil {
		if err := sw.flush(); err != nil {
			return fmt.Errorf("sse: flush frame: %w", err)
		}
	}
	return nil
}
