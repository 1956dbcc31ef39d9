package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/meetreport/internal/job"
	"github.com/tinytelemetry/meetreport/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func meeting(id string) model.MeetingRecord {
	return model.MeetingRecord{
		MeetingID:   id,
		Email:       id + "@example.com",
		MeetingType: "Zoom",
		Subject:     "Review " + id,
		DateTime:    "2025-09-04 10:00",
	}
}

func testRun(id string, started time.Time) Run {
	return Run{
		ID:          id,
		StartedAt:   started,
		FinishedAt:  started.Add(40 * time.Second),
		WindowStart: "2025-09-04",
		WindowEnd:   "2025-09-05",
		Status:      "ok",
		Records:     2,
		Delivered:   true,
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 9, 5, 7, 0, 0, 0, time.UTC)

	if err := store.RecordRun(ctx, testRun("r1", started), []model.MeetingRecord{meeting("A"), meeting("B")}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != "r1" || got.Status != "ok" || got.Records != 2 || !got.Delivered {
		t.Fatalf("run = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", got.StartedAt, started)
	}
	if got.WindowStart != "2025-09-04" || got.WindowEnd != "2025-09-05" {
		t.Fatalf("window = %s..%s", got.WindowStart, got.WindowEnd)
	}

	rows, err := store.Meetings(ctx, "r1")
	if err != nil {
		t.Fatalf("Meetings: %v", err)
	}
	if len(rows) != 2 || rows[0].MeetingID != "A" || rows[1].MeetingID != "B" {
		t.Fatalf("meetings = %+v", rows)
	}
}

func TestRuns_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 7, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := store.RecordRun(ctx, testRun(fmt.Sprintf("r%d", i), base.AddDate(0, 0, i)), nil); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	runs, err := store.Runs(ctx, 3)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	for i, want := range []string{"r4", "r3", "r2"} {
		if runs[i].ID != want {
			t.Fatalf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}
}

func TestRecordRun_DuplicateIDRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 9, 5, 7, 0, 0, 0, time.UTC)

	if err := store.RecordRun(ctx, testRun("dup", started), []model.MeetingRecord{meeting("A")}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := store.RecordRun(ctx, testRun("dup", started), []model.MeetingRecord{meeting("B")}); err == nil {
		t.Fatal("expected primary key violation")
	}

	rows, err := store.Meetings(ctx, "dup")
	if err != nil {
		t.Fatalf("Meetings: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("meetings = %d, want 1 after rollback", len(rows))
	}
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 9, 5, 7, 0, 0, 0, time.UTC)

	if err := store.RecordRun(ctx, testRun("old", now.AddDate(0, 0, -100)), []model.MeetingRecord{meeting("A")}); err != nil {
		t.Fatalf("RecordRun old: %v", err)
	}
	if err := store.RecordRun(ctx, testRun("new", now), []model.MeetingRecord{meeting("B")}); err != nil {
		t.Fatalf("RecordRun new: %v", err)
	}

	n, err := store.DeleteBefore(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "new" {
		t.Fatalf("remaining runs = %+v", runs)
	}
	rows, err := store.Meetings(ctx, "old")
	if err != nil {
		t.Fatalf("Meetings: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("orphan meetings = %d, want 0", len(rows))
	}
}

func TestPruneExpired_Disabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, testRun("ancient", time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)), nil); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	n, err := store.PruneExpired(ctx, 0)
	if err != nil || n != 0 {
		t.Fatalf("PruneExpired(0) = %d, %v; want 0, nil", n, err)
	}
	n, err = store.PruneExpired(ctx, 90)
	if err != nil || n != 1 {
		t.Fatalf("PruneExpired(90) = %d, %v; want 1, nil", n, err)
	}
}

func TestPublish_RecordsFailedRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 9, 5, 7, 0, 0, 0, time.UTC)

	out := job.Outcome{Result: job.Result{
		RunID:      "failed-run",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Window: model.DateWindow{
			Start: time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC),
		},
		Status: job.StatusFailed,
		Err:    errors.New("extract: malformed pagination summary"),
	}}
	if err := store.Publish(ctx, out); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	runs, err := store.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.Status != "failed" || got.Delivered || got.Error == "" {
		t.Fatalf("run = %+v", got)
	}
	if got.WindowStart != "2025-09-04" {
		t.Fatalf("window start = %s", got.WindowStart)
	}
}

func TestSchemaStatus(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	migrated := filepath.Join(dir, "history.duckdb")
	store, err := NewStore(migrated, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.Close()

	cur, pending, err := SchemaStatus(ctx, migrated)
	if err != nil {
		t.Fatalf("SchemaStatus: %v", err)
	}
	if cur != 1 || pending != 0 {
		t.Errorf("migrated db: version=%d pending=%d, want 1/0", cur, pending)
	}

	bare := filepath.Join(dir, "bare.duckdb")
	db, err := sql.Open("duckdb", bare)
	if err != nil {
		t.Fatalf("open bare db: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE notes (body VARCHAR)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	db.Close()

	cur, pending, err = SchemaStatus(ctx, bare)
	if err != nil {
		t.Fatalf("SchemaStatus: %v", err)
	}
	if cur != 0 || pending != 1 {
		t.Errorf("bare db: version=%d pending=%d, want 0/1", cur, pending)
	}
}
