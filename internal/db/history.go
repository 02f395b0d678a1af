package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/traffic.replay/internal/session"
)

var _ session.History = (*DB)(nil)

// SessionRecord is a row of the sessions table.
type SessionRecord struct {
	SessionID        string    `json:"session_id"`
	Dataset          string    `json:"dataset"`
	FileID           int       `json:"file_id"`
	TotalFrames      int       `json:"total_frames"`
	FrameStep        int       `json:"frame_step"`
	ParticipantCount int       `json:"participant_count"`
	MeanSpeed        float64   `json:"mean_speed"`
	P85Speed         float64   `json:"p85_speed"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecordSession stores a newly created session.
func (db *DB) RecordSession(ctx context.Context, info session.Info) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (
			session_id, dataset, file_id, total_frames, frame_step,
			participant_count, mean_speed, p85_speed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Dataset, info.FileID, info.TotalFrames, info.FrameStep,
		info.ParticipantCount, info.Speed.Mean, info.Speed.P85, info.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", info.ID, err)
	}
	return nil
}

// RecordStreamRun stores one finished stream.
func (db *DB) RecordStreamRun(ctx context.Context, run session.StreamRun) error {
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO stream_runs (
			session_id, client_id, transport, fps, total_frames,
			frames_sent, outcome, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.SessionID, run.ClientID, run.Transport, run.FPS, run.TotalFrames,
		run.FramesSent, run.Outcome, errText, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record stream run for %s: %w", run.SessionID, err)
	}
	return nil
}

// RecentStreamRuns returns up to limit runs, newest first. An empty
// sessionID matches every session.
func (db *DB) RecentStreamRuns(ctx context.Context, sessionID string, limit int) ([]session.StreamRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, client_id, transport, fps, total_frames, frames_sent,
			outcome, error, started_at, finished_at
		FROM stream_runs
		WHERE ? = '' OR session_id = ?
		ORDER BY finished_at DESC, run_id DESC
		LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []session.StreamRun
	for rows.Next() {
		var (
			run     session.StreamRun
			errText sql.NullString
		)
		if err := rows.Scan(
			&run.SessionID, &run.ClientID, &run.Transport, &run.FPS, &run.TotalFrames, &run.FramesSent,
			&run.Outcome, &errText, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, err
		}
		run.Error = errText.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, dataset, file_id, total_frames, frame_step,
			participant_count, mean_speed, p85_speed, created_at
		FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var mean, p85 sql.NullFloat64
		if err := rows.Scan(&r.SessionID, &r.Dataset, &r.FileID, &r.TotalFrames, &r.FrameStep,
			&r.ParticipantCount, &mean, &p85, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.MeanSpeed, r.P85Speed = mean.Float64, p85.Float64
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OutcomeCounts tallies stream runs by outcome.
func (db *DB) OutcomeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM stream_runs GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
