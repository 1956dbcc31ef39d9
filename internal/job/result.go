package job

import (
	"time"

	"github.com/tinytelemetry/meetreport/internal/model"
)

// Status summarizes how a run ended.
type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
	StatusFailed Status = "failed"
)

// Process exit codes returned by Result.ExitCode.
const (
	ExitOK       = 0
	ExitStartup  = 1
	ExitPipeline = 2
	ExitDelivery = 3
)

// Result is the outcome of one run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Window     model.DateWindow
	Records    int
	Status     Status

	// Err is the browser pipeline failure, if any.
	Err error
	// LaunchErr is set when the browser could not be started at all.
	LaunchErr error
	// DeliveryErr is set when the email could not be sent.
	DeliveryErr error
	// CleanupErr is set when logout or browser shutdown failed.
	CleanupErr error
	// SinkErr is set when archiving or recording history failed.
	SinkErr error
}

// Delivered reports whether an email went out.
func (r Result) Delivered() bool {
	return r.Status != StatusFailed && r.DeliveryErr == nil
}

// Duration is the wall time of the run.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode maps the result to a process exit code a scheduler can alert on.
func (r Result) ExitCode() int {
	switch {
	case r.LaunchErr != nil:
		return ExitStartup
	case r.Status == StatusFailed:
		return ExitPipeline
	case r.DeliveryErr != nil:
		return ExitDelivery
	default:
		return ExitOK
	}
}

// Outcome is what sinks receive after delivery was attempted.
type Outcome struct {
	Result
	Records []model.MeetingRecord
	// Report is the spreadsheet that was mailed; nil for no-data runs.
	Report   []byte
	FileName string
}
