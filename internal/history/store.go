// Package history records every run and the rows it extracted in DuckDB.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/meetreport/internal/history/migrate"
)

const defaultQueryTimeout = 30 * time.Second

// Store manages the DuckDB connection.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	logger       *slog.Logger
	QueryTimeout time.Duration
}

// NewStore opens or creates a history database and applies migrations.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()
	if err := migrate.NewRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:           db,
		logger:       logger,
		QueryTimeout: defaultQueryTimeout,
	}, nil
}

// SchemaStatus reports the schema version of an existing history database
// and how many migrations the next run would apply. The file is opened
// read-only and is not migrated.
func SchemaStatus(ctx context.Context, dbPath string) (current, pending int, err error) {
	db, err := sql.Open("duckdb", dbPath+"?access_mode=read_only")
	if err != nil {
		return 0, 0, err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	return migrate.NewRunner(db).Status(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.QueryTimeout)
}
