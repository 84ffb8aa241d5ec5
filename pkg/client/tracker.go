package client

import (
	"fmt"
	"strings"

	"research-flowstream/pkg/sse"
)

type StageStatus string

const (
	StatusPending StageStatus = "pending"
	StatusRunning StageStatus = "running"
	StatusDone    StageStatus = "done"
)

// Stages lists the pipeline stages in run order.
var Stages = []string{sse.StageResearcher, sse.StageAnalyst, sse.StageWriter}

// Tracker folds job stream events into what a consumer displays: stage
// badges, the accumulated report text and how the run ended.
type Tracker struct {
	stages map[string]StageStatus
	text   strings.Builder

	Final  *sse.FinalData
	Err    *sse.ErrorData
	Closed bool
}

func NewTracker() *Tracker {
	t := &Tracker{stages: make(map[string]StageStatus, len(Stages))}
	for _, s := range Stages {
		t.stages[s] = StatusPending
	}
	return t
}

// Apply records ev. A stage event with an unknown phase is an error; the
// tracker state is left unchanged.
func (t *Tracker) Apply(ev sse.Event) error {
	switch ev.Kind {
	case sse.KindStage:
		s, err := ev.Text()
		if err != nil {
			return err
		}
		stage, phase, ok := strings.Cut(s, ":")
		if !ok {
			return fmt.Errorf("client: malformed stage %q", s)
		}
		switch phase {
		case sse.PhaseStart:
			t.stages[stage] = StatusRunning
		case sse.PhaseDone:
			t.stages[stage] = StatusDone
		default:
			return fmt.Errorf("client: unknown stage phase %q", phase)
		}
	case sse.KindToken:
		s, err := ev.Text()
		if err != nil {
			return err
		}
		t.text.WriteString(s)
	case sse.KindFinal:
		f, err := ev.Final()
		if err != nil {
			return err
		}
		t.Final = &f
	case sse.KindError:
		d, err := ev.ErrorDetail()
		if err != nil {
			return err
		}
		t.Err = &d
	case sse.KindClose:
		t.Closed = true
	}
	return nil
}

func (t *Tracker) Status(stage string) StageStatus {
	if s, ok := t.stages[stage]; ok {
		return s
	}
	return StatusPending
}

// Text is every token received so far, in order.
func (t *Tracker) Text() string {
	return t.text.String()
}

// Saved reports whether the server confirmed the report was stored.
func (t *Tracker) Saved() bool {
	return t.Final != nil
}
