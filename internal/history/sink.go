package history

import (
	"context"

	"github.com/tinytelemetry/meetreport/internal/job"
)

var _ job.Sink = (*Store)(nil)

// Name implements job.Sink.
func (s *Store) Name() string { return "history" }

// Publish records the run outcome.
func (s *Store) Publish(ctx context.Context, out job.Outcome) error {
	return s.RecordRun(ctx, RunFromResult(out.Result), out.Records)
}
