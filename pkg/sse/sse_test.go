package sse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEncode_Frames(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"stage", StageEvent(StageResearcher, PhaseStart), `data: {"kind":"stage","data":"researcher:start"}` + "\n\n"},
		{"token keeps html", TokenEvent("<b>a & b</b>"), `data: {"kind":"token","data":"<b>a & b</b>"}` + "\n\n"},
		{"token newline", TokenEvent("line\n"), `data: {"kind":"token","data":"line\n"}` + "\n\n"},
		{"final", FinalEvent("id-1", "vector databases"), `data: {"kind":"final","data":{"report_id":"id-1","title":"vector databases"}}` + "\n\n"},
		{"error", ErrorEvent(StageWriter, "generation unavailable"), `data: {"kind":"error","data":{"stage":"writer","message":"generation unavailable"}}` + "\n\n"},
		{"close", CloseEvent(), "event: close\ndata: done\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(frame))
		})
	}
}

func TestEncode_RequiresKind(t *testing.T) {
	_, err := Encode(Event{})
	assert.Error(t, err)
}

func TestDecoder_SkipsMalformedFrameBetweenTokens(t *testing.T) {
	stream := `data: {"kind":"token","data":"Hello "}` + "\n\n" +
		`data: {"kind":"token","data":` + "\n\n" +
		`data: {"kind":"token","data":"world"}` + "\n\n"

	dec := NewDecoder(strings.NewReader(stream))
	var got []string
	err := dec.Decode(func(ev Event) error {
		text, err := ev.Text()
		require.NoError(t, err)
		got = append(got, text)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello ", "world"}, got)
	assert.Equal(t, 1, dec.Malformed())
}

func TestDecoder_DropsOversizedFrameAndContinues(t *testing.T) {
	huge := strings.Repeat("x", MaxLineSize+1)
	stream := `data: {"kind":"token","data":"before"}` + "\n\n" +
		`data: {"kind":"token","data":"` + huge + `"}` + "\n" +
		`data: {"kind":"token","data":"same frame"}` + "\n\n" +
		`data: {"kind":"token","data":"after"}` + "\n\n" +
		"event: close\ndata: done\n\n"

	dec := NewDecoder(strings.NewReader(stream))
	var got []string
	err := dec.Decode(func(ev Event) error {
		if ev.Kind == KindClose {
			got = append(got, "<close>")
			return nil
		}
		text, err := ev.Text()
		require.NoError(t, err)
		got = append(got, text)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after", "<close>"}, got)
	assert.Equal(t, 1, dec.Malformed())
}

func TestDecoder_IgnoresEmptyAndNonDataFrames(t *testing.T) {
	stream := "\n\n" +
		": keep-alive\n\n" +
		"garbage without prefix\n\n" +
		"event: ping\ndata: {\"kind\":\"token\",\"data\":\"nope\"}\n\n" +
		"data:\n\n" +
		`data: {"data":"no kind"}` + "\n\n" +
		`data: {"kind":"stage","data":"writer:start"}` + "\n\n"

	dec := NewDecoder(strings.NewReader(stream))
	var kinds []Kind
	require.NoError(t, dec.Decode(func(ev Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	}))

	assert.Equal(t, []Kind{KindStage}, kinds)
	assert.Equal(t, 1, dec.Malformed())
}

func TestDecoder_StopsAtCloseFrame(t *testing.T) {
	stream := `data: {"kind":"token","data":"a"}` + "\n\n" +
		string(CloseFrame) +
		`data: {"kind":"token","data":"after close"}` + "\n\n"

	var kinds []Kind
	require.NoError(t, NewDecoder(strings.NewReader(stream)).Decode(func(ev Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	}))
	assert.Equal(t, []Kind{KindToken, KindClose}, kinds)
}

func TestDecoder_HandlesCRLFAndTrailingFrame(t *testing.T) {
	stream := "data: {\"kind\":\"token\",\"data\":\"x\"}\r\n\r\ndata: {\"kind\":\"token\",\"data\":\"y\"}"

	var got []string
	require.NoError(t, NewDecoder(strings.NewReader(stream)).Decode(func(ev Event) error {
		s, _ := ev.Text()
		got = append(got, s)
		return nil
	}))
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestDecoder_PropagatesCallbackError(t *testing.T) {
	stop := errors.New("stop")
	stream := `data: {"kind":"token","data":"a"}` + "\n\n" + `data: {"kind":"token","data":"b"}` + "\n\n"

	calls := 0
	err := NewDecoder(strings.NewReader(stream)).Decode(func(Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWriterDecoder_RoundTripOverPipe(t *testing.T) {
	pr, pw := io.Pipe()
	sent := []Event{
		StageEvent(StageWriter, PhaseStart),
		TokenEvent("## Topic\n\n"),
		TokenEvent("\"quoted\" text"),
		StageEvent(StageWriter, PhaseDone),
		FinalEvent("abc", "Topic"),
	}

	done := make(chan error, 1)
	go func() {
		w := NewWriter(pw, nil)
		for _, ev := range sent {
			if err := w.Emit(context.Background(), ev); err != nil {
				done <- err
				return
			}
		}
		done <- w.Close(context.Background())
		pw.Close()
	}()

	var got []Event
	require.NoError(t, NewDecoder(pr).Decode(func(ev Event) error {
		got = append(got, ev)
		return nil
	}))
	require.NoError(t, <-done)
	pr.Close()

	require.Len(t, got, len(sent)+1)
	for i, ev := range sent {
		assert.Equal(t, ev.Kind, got[i].Kind)
		assert.JSONEq(t, string(ev.Data), string(got[i].Data))
	}
	assert.Equal(t, KindClose, got[len(sent)].Kind)

	fd, err := got[4].Final()
	require.NoError(t, err)
	assert.Equal(t, FinalData{ReportID: "abc", Title: "Topic"}, fd)
}

func TestWriter_FlushesEveryFrame(t *testing.T) {
	var buf bytes.Buffer
	flushes := 0
	w := NewWriter(&buf, func() error {
		flushes++
		return nil
	})

	require.NoError(t, w.Emit(context.Background(), TokenEvent("a")))
	require.NoError(t, w.Emit(context.Background(), TokenEvent("b")))
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, 3, flushes)
}

func TestWriter_FailsAfterCancelOrFlushError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := NewWriter(&buf, nil).Emit(ctx, TokenEvent("a"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())

	gone := errors.New("broken pipe")
	err = NewWriter(&buf, func() error { return gone }).Emit(context.Background(), TokenEvent("a"))
	assert.ErrorIs(t, err, gone)
}

func TestEvent_Accessors(t *testing.T) {
	ed, err := ErrorEvent(StagePersist, "report could not be saved").ErrorDetail()
	require.NoError(t, err)
	assert.Equal(t, StagePersist, ed.Stage)

	_, err = TokenEvent("x").Final()
	assert.Error(t, err)

	_, err = FinalEvent("a", "b").Text()
	assert.Error(t, err)
}

func TestMarshal_BareJSON(t *testing.T) {
	b, err := Marshal(TokenEvent("<b>&"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"token","data":"<b>&"}`, string(b))
	assert.Contains(t, string(b), "<b>&")

	b, err = Marshal(CloseEvent())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"close","data":"done"}`, string(b))

	_, err = Marshal(Event{})
	assert.Error(t, err)
}
