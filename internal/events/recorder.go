// Package events implements ProgressRecorder (spec.md §4.5): an append-only
// execution event log backed by Postgres, broadcast to subscribers over
// WebSocket via LISTEN/NOTIFY, modeled on the teacher's pkg/events package
// (EventPublisher + NotifyListener + ConnectionManager).
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reportforge/reportengine/internal/models"
)

// Channel returns the LISTEN/NOTIFY channel name for an execution. pg_notify
// takes the channel as a bound parameter, so no identifier quoting is
// needed here; NotifyListener.Subscribe quotes it when issuing LISTEN.
func Channel(executionID string) string {
	return "execution_" + executionID
}

// Recorder persists execution events and notifies subscribers. Persistence
// and notification happen inside the same transaction that increments the
// execution's sequence counter, so seq is gap-free and strictly increasing.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder creates a Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Append persists ev with the next sequence number for its execution and
// broadcasts it via NOTIFY, carrying status alongside it so subscribers
// never have to join against task_executions to know the current state.
// The returned event has Seq populated.
func (r *Recorder) Append(ctx context.Context, ev models.ExecutionEvent, status models.ExecutionStatus) (models.ExecutionEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ev, fmt.Errorf("events: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	err = tx.QueryRow(ctx,
		`INSERT INTO execution_events (execution_id, seq, stage, percent, message, details, error, at)
		 VALUES ($1, COALESCE((SELECT MAX(seq) FROM execution_events WHERE execution_id = $1), 0) + 1,
		         $2, $3, $4, $5, $6, now())
		 RETURNING seq, at`,
		ev.ExecutionID, ev.Stage, ev.Percent, ev.Message, jsonOrNil(ev.Details), ev.Error,
	).Scan(&seq, &ev.At)
	if err != nil {
		return ev, fmt.Errorf("events: insert: %w", err)
	}
	ev.Seq = seq

	payload, err := json.Marshal(toWire(ev, status))
	if err != nil {
		return ev, fmt.Errorf("events: marshal notify payload: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", Channel(ev.ExecutionID), string(payload)); err != nil {
		return ev, fmt.Errorf("events: notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ev, fmt.Errorf("events: commit: %w", err)
	}
	return ev, nil
}

func toWire(ev models.ExecutionEvent, status models.ExecutionStatus) models.ExecutionEventWire {
	return models.ExecutionEventWire{
		ExecutionID: ev.ExecutionID,
		Seq:         ev.Seq,
		Status:      status,
		Progress:    ev.Percent,
		Message:     ev.Message,
		Details:     ev.Details,
		Error:       ev.Error,
	}
}

func jsonOrNil(m map[string]any) []byte {
	if len(m) == 0 {
		return nil
	}
	b, _ := json.Marshal(m)
	return b
}

// Since returns every event recorded for executionID with seq > sinceSeq, in
// ascending order, used for catchup delivery to late subscribers.
func (r *Recorder) Since(ctx context.Context, executionID string, sinceSeq int64, limit int) ([]models.ExecutionEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT execution_id, seq, stage, percent, message, details, error, at
		 FROM execution_events
		 WHERE execution_id = $1 AND seq > $2
		 ORDER BY seq ASC
		 LIMIT $3`,
		executionID, sinceSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("events: query since: %w", err)
	}
	defer rows.Close()

	var out []models.ExecutionEvent
	for rows.Next() {
		var ev models.ExecutionEvent
		var details []byte
		if err := rows.Scan(&ev.ExecutionID, &ev.Seq, &ev.Stage, &ev.Percent, &ev.Message, &details, &ev.Error, &ev.At); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &ev.Details)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
