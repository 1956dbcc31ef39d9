package history

import (
	"context"
	"fmt"
	"time"

	"github.com/tinytelemetry/meetreport/internal/job"
	"github.com/tinytelemetry/meetreport/internal/model"
)

// Run is one row of the runs table.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	WindowStart   string
	WindowEnd     string
	Status        string
	Records       int
	Delivered     bool
	Error         string
	DeliveryError string
}

// RunFromResult converts a job result into a history row.
func RunFromResult(res job.Result) Run {
	run := Run{
		ID:          res.RunID,
		StartedAt:   res.StartedAt.UTC(),
		FinishedAt:  res.FinishedAt.UTC(),
		WindowStart: res.Window.StartLabel(),
		WindowEnd:   res.Window.EndLabel(),
		Status:      string(res.Status),
		Records:     res.Records,
		Delivered:   res.Delivered(),
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if res.DeliveryErr != nil {
		run.DeliveryError = res.DeliveryErr.Error()
	}
	return run
}

// RecordRun stores run and its extracted records in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, records []model.MeetingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, window_start, window_end,
			status, records, delivered, error, delivery_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt, run.WindowStart, run.WindowEnd,
		run.Status, run.Records, run.Delivered, run.Error, run.DeliveryError)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO failed_meetings (run_id, row_num, meeting_id, email, meeting_type, subject, date_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare meetings insert: %w", err)
		}
		defer stmt.Close()

		for i, r := range records {
			if _, err := stmt.ExecContext(ctx, run.ID, i+1, r.MeetingID, r.Email, r.MeetingType, r.Subject, r.DateTime); err != nil {
				return fmt.Errorf("insert meeting row %d: %w", i+1, err)
			}
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, window_start, window_end,
			status, records, delivered, error, delivery_error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.WindowStart, &r.WindowEnd,
			&r.Status, &r.Records, &r.Delivered, &r.Error, &r.DeliveryError); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Meetings returns the rows stored for runID in table order.
func (s *Store) Meetings(ctx context.Context, runID string) ([]model.MeetingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT meeting_id, email, meeting_type, subject, date_time
		FROM failed_meetings
		WHERE run_id = ?
		ORDER BY row_num`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MeetingRecord
	for rows.Next() {
		var r model.MeetingRecord
		if err := rows.Scan(&r.MeetingID, &r.Email, &r.MeetingType, &r.Subject, &r.DateTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBefore removes runs started before cutoff along with their rows and
// returns the number of runs deleted.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM failed_meetings
		WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("delete meetings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// PruneExpired deletes runs older than retentionDays. Zero disables pruning.
func (s *Store) PruneExpired(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	n, err := s.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: retention cleanup: %w", err)
	}
	if n > 0 {
		s.logger.Info("retention cleanup deleted expired runs", "runs", n, "retention_days", retentionDays)
	}
	return n, nil
}
