package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is one recorded log line.
type Entry struct {
	Level string
	Msg   string
	KV    map[string]interface{}
}

// String renders the entry the way a text handler would.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Level)
	b.WriteString(" ")
	b.WriteString(e.Msg)
	for k, v := range e.KV {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}

// Logger records log lines for assertions. It satisfies logging.Logger.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *Logger) record(level, msg string, keysAndValues []interface{}) {
	kv := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		kv[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, KV: kv})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.record("DEBUG", msg, keysAndValues)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) { l.record("INFO", msg, keysAndValues) }
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) { l.record("WARN", msg, keysAndValues) }
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.record("ERROR", msg, keysAndValues)
}

// Entries returns a snapshot of the recorded lines.
func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// ByLevel returns the recorded lines at level ("DEBUG", "INFO", ...).
func (l *Logger) ByLevel(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
