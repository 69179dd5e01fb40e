package eventlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink writes records to the bot_events table. The table is created by
// the deploy job, not at startup.
type PGSink struct {
	db *pgxpool.Pool
}

// NewPGSink creates a Postgres sink over an existing pool.
func NewPGSink(db *pgxpool.Pool) *PGSink {
	return &PGSink{db: db}
}

// Write inserts one record. Silently skips when no pool is configured.
func (s *PGSink) Write(ctx context.Context, rec Record) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO bot_events
			(ts, event, session_id, user_text, intent, confidence, protocol_id, step_index, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.Time, string(rec.Event), rec.SessionID, rec.UserText, rec.Intent,
		rec.Confidence, rec.ProtocolID, rec.StepIndex, rec.LatencyMS)
	return err
}
