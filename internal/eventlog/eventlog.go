// Package eventlog writes structured, one-line JSON events through a
// printf-style logger such as *log.Logger.
package eventlog

import (
	"encoding/json"
	"time"
)

type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Nop discards everything.
var Nop Logger = nopLogger{}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop
	}
	return l
}

// Event logs {"event": event, "ts": <RFC3339Nano UTC>, ...fields}.
func Event(l Logger, event string, fields map[string]any) {
	payload := map[string]any{
		"event": event,
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		l.Printf("log_marshal_error: %v", err)
		return
	}
	l.Printf("%s", data)
}
