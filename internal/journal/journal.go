// Package journal records process lifecycle events as line-delimited JSON.
package journal

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Journaler describes an event logger.
type Journaler interface {
	Write(Event) error
}

// Entry is a decoded journal line.
type Entry struct {
	Time time.Time       `json:"time"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode decodes the entry data into its typed event.
func (e Entry) Decode() (Event, error) {
	ev := NewEvent(e.Type)
	if ev == nil {
		return nil, errors.Errorf("unknown event type %q", e.Type)
	}
	if err := json.Unmarshal(e.Data, ev); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event data")
	}
	return ev, nil
}

type writerJournaler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterJournaler creates a new journaler that writes line-delimited JSON
// events into the writer.
func NewWriterJournaler(w io.Writer) Journaler {
	return &writerJournaler{w: w}
}

// Write writes the given event. Writes are concurrently safe and each event is
// written with a single Write call.
func (l *writerJournaler) Write(ev Event) error {
	type eventJSON struct {
		Time time.Time `json:"time"`
		Type string    `json:"type"`
		Data Event     `json:"data"`
	}

	buf := bytes.Buffer{}
	buf.Grow(256)

	// Encode appends the trailing newline.
	if err := json.NewEncoder(&buf).Encode(eventJSON{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}

type discard struct{}

func (discard) Write(Event) error { return nil }

// Discard returns a Journaler that drops every event.
func Discard() Journaler {
	return discard{}
}

// OrDiscard returns j, or Discard when j is nil.
func OrDiscard(j Journaler) Journaler {
	if j == nil {
		return Discard()
	}
	return j
}
