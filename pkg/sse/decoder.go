package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Decoder reads job stream frames. A frame that fails to parse is dropped and
// counted; it never ends the stream.
type Decoder struct {
	r         io.Reader
	malformed int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Malformed reports how many data frames were discarded so far.
func (d *Decoder) Malformed() int {
	return d.malformed
}

// MaxLineSize bounds a single line of a frame. Longer lines are discarded
// together with the frame that contains them.
const MaxLineSize = 512 * 1024

// Decode calls fn for every well-formed event until the close frame, EOF or
// an error returned by fn. The close frame is delivered as a KindClose event.
func (d *Decoder) Decode(fn func(Event) error) error {
	reader := bufio.NewReaderSize(d.r, 4096)

	var eventName string
	var dataLines []string
	oversized := false
	closed := false

	flush := func() error {
		name := strings.TrimSpace(eventName)
		data := strings.Join(dataLines, "\n")
		dropped := oversized
		eventName = ""
		dataLines = dataLines[:0]
		oversized = false

		if dropped {
			d.malformed++
			return nil
		}
		if name == string(KindClose) {
			closed = true
			return fn(CloseEvent())
		}
		if data == "" || (name != "" && name != "message") {
			return nil
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil || ev.Kind == "" {
			d.malformed++
			return nil
		}
		if ev.Kind == KindClose {
			closed = true
		}
		return fn(ev)
	}

	for {
		raw, tooLong, err := readLine(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if tooLong {
			oversized = true
			continue
		}

		line := strings.TrimRight(raw, "\r")
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			if closed {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if eventName == "" && len(dataLines) == 0 && !oversized {
		return nil
	}
	return flush()
}

// readLine returns the next line without its terminator. A line longer than
// MaxLineSize is consumed to its end and reported as tooLong.
func readLine(r *bufio.Reader) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		part, isPrefix, err := r.ReadLine()
		if err != nil {
			if err == io.EOF && (len(buf) > 0 || tooLong) {
				return string(buf), tooLong, nil
			}
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(part) > MaxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, part...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}
