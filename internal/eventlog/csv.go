package eventlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// csvHeader is the fixed column order of the decision log file.
var csvHeader = []string{
	"ts_iso", "event", "session_id", "user_text", "intent",
	"confidence", "protocol_id", "step_index", "latency_ms",
}

// CSVSink appends records to a CSV file, one row per decision. The header
// is written once when the file is created.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVSink opens (or creates) the log file at path.
func NewCSVSink(path string) (*CSVSink, error) {
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics log: %w", err)
	}

	s := &CSVSink{file: file, w: csv.NewWriter(file)}
	if fresh {
		if err := s.w.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write metrics header: %w", err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("flush metrics header: %w", err)
		}
	}
	return s, nil
}

// Write appends one record as a CSV row.
func (s *CSVSink) Write(_ context.Context, rec Record) error {
	row := []string{
		rec.Time.UTC().Format(time.RFC3339),
		string(rec.Event),
		rec.SessionID,
		rec.UserText,
		rec.Intent,
		formatFloat(rec.Confidence),
		rec.ProtocolID,
		formatInt(rec.StepIndex),
		strconv.FormatInt(rec.LatencyMS, 10),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.file.Close()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
