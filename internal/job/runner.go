// Package job runs one end-to-end report: log in, select the window, extract
// the table, mail the spreadsheet and log out.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/meetreport/internal/browser"
	"github.com/tinytelemetry/meetreport/internal/datepicker"
	"github.com/tinytelemetry/meetreport/internal/extract"
	"github.com/tinytelemetry/meetreport/internal/model"
	"github.com/tinytelemetry/meetreport/internal/portal"
	"github.com/tinytelemetry/meetreport/internal/report"
)

const defaultCleanupTimeout = 30 * time.Second

// Launcher starts a browser for one run.
type Launcher func(ctx context.Context) (browser.Instance, error)

// Notifier delivers the report or the no-data notice.
type Notifier interface {
	SendReport(ctx context.Context, window model.DateWindow, payload []byte) error
}

// Sink receives the outcome of a run after delivery was attempted.
type Sink interface {
	Name() string
	Publish(ctx context.Context, out Outcome) error
}

// Config holds the per-run settings.
type Config struct {
	Portal         portal.Config
	Selectors      portal.Selectors
	DayOffset      int
	MaxMonthSteps  int
	CleanupTimeout time.Duration
}

// Runner owns the browser for the duration of a run.
type Runner struct {
	cfg      Config
	launch   Launcher
	notifier Notifier
	sinks    []Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner wires a runner. A nil logger uses slog.Default.
func NewRunner(cfg Config, launch Launcher, notifier Notifier, logger *slog.Logger, sinks ...Sink) *Runner {
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		launch:   launch,
		notifier: notifier,
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
	}
}

// Run performs one report run. It never panics on pipeline errors; every
// failure is reported in the Result. Logout and browser shutdown run
// exactly once whenever the browser was started.
func (r *Runner) Run(ctx context.Context) (res Result) {
	res = Result{RunID: uuid.NewString(), StartedAt: r.now()}
	res.Window = datepicker.Window(res.StartedAt, r.cfg.DayOffset)
	logger := r.logger.With("run_id", res.RunID)
	defer func() { res.FinishedAt = r.now() }()

	inst, err := r.launch(ctx)
	if err != nil {
		res.Status = StatusFailed
		res.LaunchErr = err
		res.Err = fmt.Errorf("launch browser: %w", err)
		logger.Error("run failed", "error", res.Err)
		res.SinkErr = r.publish(ctx, Outcome{Result: res}, res, logger)
		return res
	}

	out, err := r.session(ctx, inst, logger, res)
	res = out.Result
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		logger.Error("run failed", "error", err)
	}

	res.SinkErr = r.publish(ctx, out, res, logger)
	return res
}

// session runs the pipeline and always cleans up afterwards.
func (r *Runner) session(ctx context.Context, inst browser.Instance, logger *slog.Logger, res Result) (out Outcome, err error) {
	defer func() { out.CleanupErr = r.cleanup(ctx, inst, logger) }()
	return r.pipeline(ctx, inst, logger, res)
}

// pipeline runs every step up to and including delivery.
func (r *Runner) pipeline(ctx context.Context, page browser.Page, logger *slog.Logger, res Result) (Outcome, error) {
	out := Outcome{Result: res}
	session := portal.NewSession(page, r.cfg.Portal, r.cfg.Selectors, logger)

	if err := session.Login(ctx); err != nil {
		return out, fmt.Errorf("login: %w", err)
	}
	if err := session.OpenReport(ctx); err != nil {
		return out, fmt.Errorf("open report: %w", err)
	}

	sel := r.cfg.Selectors
	picker := datepicker.NewPicker(datepicker.Controls{
		Input:       sel.DateInput,
		MonthHeader: sel.MonthHeader,
		PrevMonth:   sel.PrevMonth,
		Day:         sel.Day,
	}, r.cfg.MaxMonthSteps, logger)
	window, err := picker.Select(ctx, page, res.StartedAt, r.cfg.DayOffset)
	if err != nil {
		return out, fmt.Errorf("select date: %w", err)
	}
	out.Window = window
	if err := page.WaitIdle(ctx); err != nil {
		return out, fmt.Errorf("apply date filter: %w", err)
	}

	extractor := extract.NewExtractor(extract.Controls{
		NoResults: sel.NoResults,
		Summary:   sel.Summary,
		Page:      sel.Page,
		Rows:      sel.TableRows,
		Cells:     sel.TableCells,
	}, logger)
	records, err := extractor.ExtractAll(ctx, page)
	if err != nil {
		return out, fmt.Errorf("extract: %w", err)
	}
	out.Records = records
	out.Result.Records = len(records)

	if len(records) == 0 {
		out.Status = StatusNoData
	} else {
		payload, err := report.Build(records)
		if err != nil {
			return out, err
		}
		out.Status = StatusOK
		out.Report = payload
		out.FileName = report.FileName(window)
		logger.Info("spreadsheet built", "rows", len(records), "bytes", len(payload))
	}

	if err := r.notifier.SendReport(ctx, window, out.Report); err != nil {
		// Delivery failures do not fail the run; they surface in the result.
		out.DeliveryErr = err
		logger.Error("report delivery failed", "error", err)
	}
	return out, nil
}

// cleanup logs out and closes the browser. It runs on a context detached
// from ctx so a cancelled run still releases the session.
func (r *Runner) cleanup(ctx context.Context, inst browser.Instance, logger *slog.Logger) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CleanupTimeout)
	defer cancel()

	var errs []error
	session := portal.NewSession(inst, r.cfg.Portal, r.cfg.Selectors, logger)
	if err := session.Logout(cctx); err != nil {
		logger.Warn("logout failed", "error", err)
		errs = append(errs, fmt.Errorf("logout: %w", err))
	}
	if err := inst.Close(); err != nil {
		logger.Warn("browser close failed", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// publish hands the outcome to every sink concurrently; the page is already
// closed so sinks never touch the browser.
func (r *Runner) publish(ctx context.Context, out Outcome, res Result, logger *slog.Logger) error {
	if len(r.sinks) == 0 {
		return nil
	}
	out.Result = res
	out.FinishedAt = r.now()

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Publish(gctx, out); err != nil {
				logger.Warn("sink failed", "sink", sink.Name(), "error", err)
				return fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
