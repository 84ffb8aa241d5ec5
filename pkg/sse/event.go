package sse

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindStage Kind = "stage"
	KindToken Kind = "token"
	KindFinal Kind = "final"
	KindError Kind = "error"

	// KindClose is never encoded as a data frame. Decoders report it when the
	// terminating close frame arrives.
	KindClose Kind = "close"
)

// Stage names carried by stage events, e.g. "researcher:start".
const (
	StageResearcher = "researcher"
	StageAnalyst    = "analyst"
	StageWriter     = "writer"
	StagePersist    = "persist"

	PhaseStart = "start"
	PhaseDone  = "done"
)

// Event is one frame on the job stream.
type Event struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type FinalData struct {
	ReportID string `json:"report_id"`
	Title    string `json:"title"`
}

type ErrorData struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func StageEvent(stage, phase string) Event {
	return Event{Kind: KindStage, Data: rawString(stage + ":" + phase)}
}

func TokenEvent(fragment string) Event {
	return Event{Kind: KindToken, Data: rawString(fragment)}
}

func FinalEvent(reportID, title string) Event {
	return Event{Kind: KindFinal, Data: rawJSON(FinalData{ReportID: reportID, Title: title})}
}

func ErrorEvent(stage, message string) Event {
	return Event{Kind: KindError, Data: rawJSON(ErrorData{Stage: stage, Message: message})}
}

func CloseEvent() Event {
	return Event{Kind: KindClose, Data: rawString("done")}
}

// Text returns the payload of stage, token and close events.
func (e Event) Text() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("%s event data is not a string: %w", e.Kind, err)
	}
	return s, nil
}

func (e Event) Final() (FinalData, error) {
	var fd FinalData
	if e.Kind != KindFinal {
		return fd, fmt.Errorf("expected final event, got %q", e.Kind)
	}
	if err := json.Unmarshal(e.Data, &fd); err != nil {
		return fd, fmt.Errorf("decode final data: %w", err)
	}
	return fd, nil
}

func (e Event) ErrorDetail() (ErrorData, error) {
	var ed ErrorData
	if e.Kind != KindError {
		return ed, fmt.Errorf("expected error event, got %q", e.Kind)
	}
	if err := json.Unmarshal(e.Data, &ed); err != nil {
		return ed, fmt.Errorf("decode error data: %w", err)
	}
	return ed, nil
}

func rawString(s string) json.RawMessage {
	return rawJSON(s)
}

// rawJSON only receives strings and flat structs of strings, which always marshal.
func rawJSON(v interface{}) json.RawMessage {
	b, err := marshal(v)
	if err != nil {
		panic(fmt.Sprintf("sse: marshal %T: %v", v, err))
	}
	return b
}
