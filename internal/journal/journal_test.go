package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestWriterJournaler_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	j := NewWriterJournaler(&buf)

	events := []Event{
		&EventProcessSpawned{Owner: "minikube", PID: 42, Binary: "/opt/prometheus", Listen: "127.0.0.1:9090"},
		&EventProcessExited{Owner: "minikube", PID: 42, ExitCode: 137},
	}
	for _, ev := range events {
		if err := j.Write(ev); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	scanner := bufio.NewScanner(&buf)
	var got []Event
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid journal line %q: %v", scanner.Text(), err)
		}
		ev, err := entry.Decode()
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		got = append(got, ev)
	}

	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d", len(got), len(events))
	}
	exited, ok := got[1].(*EventProcessExited)
	if !ok {
		t.Fatalf("second event is %T, want *EventProcessExited", got[1])
	}
	if exited.ExitCode != 137 || exited.Expected {
		t.Errorf("unexpected exited event: %+v", exited)
	}
}

func TestEntry_DecodeUnknown(t *testing.T) {
	_, err := Entry{Type: "bogus", Data: json.RawMessage(`{}`)}.Decode()
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterJournaler_WriteError(t *testing.T) {
	err := NewWriterJournaler(failingWriter{}).Write(&EventProcessStopped{Owner: "a"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestWriterJournaler_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	j := NewWriterJournaler(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			_ = j.Write(&EventProcessSpawned{PID: pid})
		}(i)
	}
	wg.Wait()

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines != 20 {
		t.Errorf("got %d lines, want 20", lines)
	}
}
