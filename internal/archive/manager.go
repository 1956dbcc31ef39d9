// Package archive keeps local copies of sent spreadsheets and optionally
// uploads them to S3.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinytelemetry/meetreport/internal/job"
	"github.com/tinytelemetry/meetreport/internal/report"
)

const defaultKeepLast = 30

// Manager writes spreadsheets into Dir and prunes old copies.
type Manager struct {
	cfg      Config
	uploader Uploader
	logger   *slog.Logger
}

var _ job.Sink = (*Manager)(nil)

// NewManager initializes the archive. It returns nil when Dir is empty.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, nil
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
			ContentType:  report.ContentType,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	return &Manager{cfg: cfg, uploader: uploader, logger: logger}, nil
}

// Name implements job.Sink.
func (m *Manager) Name() string { return "archive" }

// Publish archives the mailed spreadsheet. Runs without one are ignored.
func (m *Manager) Publish(ctx context.Context, out job.Outcome) error {
	if len(out.Report) == 0 || out.FileName == "" {
		return nil
	}
	return m.Save(ctx, out.FileName, out.Report)
}

// Save writes data to Dir/name, uploads it when configured, and prunes old
// local copies.
func (m *Manager) Save(ctx context.Context, name string, data []byte) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("archive: invalid file name %q", name)
	}
	localPath := filepath.Join(m.cfg.Dir, name)
	if err := writeFileAtomic(localPath, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	m.logger.Info("archived report", "path", localPath, "bytes", len(data))

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		m.logger.Info("uploaded report", "file", name)
	}

	if err := pruneLocal(m.cfg.Dir, m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune archive: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func pruneLocal(dir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, report.FilePattern))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		// window dates are embedded in the name so lexical order is chronological
		return matches[i] > matches[j]
	})

	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
