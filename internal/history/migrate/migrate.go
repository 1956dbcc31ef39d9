// Package migrate applies the embedded history schema.
package migrate

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Runner applies versioned SQL migrations to a DuckDB database.
type Runner struct{ db *sql.DB }

// NewRunner creates a migration runner for db.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// step is one embedded NNN_name.sql file.
type step struct {
	version int
	file    string
}

func (s step) body() (string, error) {
	data, err := migrations.ReadFile(path.Join("migrations", s.file))
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", s.file, err)
	}
	return string(data), nil
}

// steps lists the embedded migrations in version order. Two files sharing
// a version are rejected.
func steps() ([]step, error) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	out := make([]step, 0, len(files))
	for _, f := range files {
		name := path.Base(f)
		var v int
		if _, err := fmt.Sscanf(name, "%d_", &v); err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", name)
		}
		out = append(out, step{version: v, file: name})
	}

	slices.SortFunc(out, func(a, b step) int { return cmp.Compare(a.version, b.version) })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("migrations %s and %s share version %d", out[i-1].file, out[i].file, out[i].version)
		}
	}
	return out, nil
}

// Run brings the schema up to date. Each migration commits on its own, so a
// failure leaves every earlier version applied.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	_, todo, err := r.pending(ctx)
	if err != nil {
		return err
	}
	for _, s := range todo {
		if err := r.apply(ctx, s); err != nil {
			return fmt.Errorf("migration %s: %w", s.file, err)
		}
	}
	return nil
}

// Status returns the applied version and how many migrations Run would
// apply. It never writes, so it is safe on a read-only connection.
func (r *Runner) Status(ctx context.Context) (current, pending int, err error) {
	current, todo, err := r.pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	return current, len(todo), nil
}

// pending returns the applied version and the migrations newer than it.
func (r *Runner) pending(ctx context.Context) (int, []step, error) {
	all, err := steps()
	if err != nil {
		return 0, nil, err
	}
	current, err := r.version(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("read schema version: %w", err)
	}
	idx, _ := slices.BinarySearchFunc(all, current+1, func(s step, v int) int { return cmp.Compare(s.version, v) })
	return current, all[idx:], nil
}

// version is the highest applied migration, or 0 for a database that was
// never migrated.
func (r *Runner) version(ctx context.Context) (int, error) {
	var tables int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = 'schema_migrations'`,
	).Scan(&tables); err != nil {
		return 0, err
	}
	if tables == 0 {
		return 0, nil
	}

	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT max(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

func (r *Runner) apply(ctx context.Context, s step) error {
	body, err := s.body()
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.file,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
