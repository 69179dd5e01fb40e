// Package eventlog records every bot decision fire-and-forget. Sink
// failures are logged and never reach the request path.
package eventlog

import (
	"context"
	"log"
	"time"
)

// Event identifies the kind of decision being logged.
type Event string

const (
	EventUnderstand    Event = "understand"
	EventTurn          Event = "turn"
	EventNextStep      Event = "next_step"
	EventFeedback      Event = "feedback"
	EventSTTTranscribe Event = "stt_transcribe"
	EventCallPlaced    Event = "call_placed"
)

// Record is one logged decision. Optional fields are pointers so the sinks
// can tell "absent" from zero.
type Record struct {
	Time       time.Time
	Event      Event
	SessionID  string
	UserText   string
	Intent     string
	Confidence *float64
	ProtocolID string
	StepIndex  *int
	LatencyMS  int64
}

// Sink persists records somewhere.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Logger fans records out to a sink without blocking the caller.
type Logger struct {
	sink   Sink
	logger *log.Logger
}

// New creates a Logger over the given sink. A nil sink disables logging.
func New(sink Sink, logger *log.Logger) *Logger {
	return &Logger{sink: sink, logger: logger}
}

// Log writes a record synchronously. The record's timestamp is filled in
// when unset.
func (l *Logger) Log(ctx context.Context, rec Record) error {
	if l == nil || l.sink == nil {
		return nil
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	return l.sink.Write(ctx, rec)
}

// LogAsync writes a record without blocking the caller. Errors are logged
// and swallowed.
func (l *Logger) LogAsync(rec Record) {
	if l == nil || l.sink == nil {
		return
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.sink.Write(ctx, rec); err != nil && l.logger != nil {
			l.logger.Printf("eventlog: write failed: %v", err)
		}
	}()
}

// Float is a convenience for optional confidence values.
func Float(v float64) *float64 { return &v }

// Int is a convenience for optional step indexes.
func Int(v int) *int { return &v }
