package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tinytelemetry/meetreport/internal/archive"
	"github.com/tinytelemetry/meetreport/internal/browser"
	"github.com/tinytelemetry/meetreport/internal/history"
	"github.com/tinytelemetry/meetreport/internal/job"
	"github.com/tinytelemetry/meetreport/internal/logging"
	"github.com/tinytelemetry/meetreport/internal/metrics"
	"github.com/tinytelemetry/meetreport/internal/notify"
)

// runReport performs one run and converts its result into an exit code.
func runReport(parent context.Context, cfg appConfig) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := logging.New(cfg.loggingConfig())
	if err != nil {
		return startupError(fmt.Errorf("configuring logger: %w", err))
	}
	defer closeLog()
	slog.SetDefault(logger)

	sinks, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return startupError(err)
	}
	defer closeSinks()

	client, err := notify.NewSMTPClient(cfg.mailConfig())
	if err != nil {
		return startupError(fmt.Errorf("configuring smtp: %w", err))
	}
	mailer := notify.NewMailer(cfg.mailConfig(), client, logger)

	opts := cfg.browserOptions()
	opts.Logger = logger
	launch := func(ctx context.Context) (browser.Instance, error) {
		c, err := browser.Launch(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	runner := job.NewRunner(cfg.jobConfig(), launch, mailer, logger, sinks...)
	res := runner.Run(ctx)

	logger.Info("run finished",
		"run_id", res.RunID,
		"status", res.Status,
		"records", res.Records,
		"delivered", res.Delivered(),
		"duration", res.Duration().Round(time.Millisecond))
	printRunSummary(os.Stdout, cfg, res)

	if code := res.ExitCode(); code != job.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

// buildSinks opens the optional archive, history and metrics outputs.
func buildSinks(ctx context.Context, cfg appConfig, logger *slog.Logger) ([]job.Sink, func(), error) {
	var sinks []job.Sink
	closeFn := func() {}

	am, err := archive.NewManager(cfg.archiveConfig(), logger)
	if err != nil {
		return nil, closeFn, err
	}
	if am != nil {
		sinks = append(sinks, am)
	}

	if cfg.HistoryDBPath != "" {
		store, err := history.NewStore(cfg.HistoryDBPath, logger)
		if err != nil {
			return nil, closeFn, fmt.Errorf("opening history: %w", err)
		}
		if _, err := store.PruneExpired(ctx, cfg.HistoryRetentionDays); err != nil {
			logger.Warn("history retention failed", "error", err)
		}
		sinks = append(sinks, store)
		closeFn = func() { _ = store.Close() }
	}

	if cfg.MetricsTextfile != "" {
		sinks = append(sinks, metrics.NewRecorder(cfg.MetricsTextfile, logger))
	}
	return sinks, closeFn, nil
}

func printRunSummary(w io.Writer, cfg appConfig, res job.Result) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	cross := red.Render("●")
	dot := dim.Render("●")

	mark := func(ok bool) string {
		if ok {
			return check
		}
		return cross
	}

	var lines []string
	lines = append(lines, "")
	lines = append(lines, "    "+cyan.Bold(true).Render("meetreport")+" "+dim.Render("v"+version))
	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Run"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Window         %s", check, cyan.Render(res.Window.String())))
	lines = append(lines, fmt.Sprintf("    %s  Status         %s", mark(res.Status != job.StatusFailed), string(res.Status)))
	lines = append(lines, fmt.Sprintf("    %s  Records        %d", check, res.Records))
	lines = append(lines, fmt.Sprintf("    %s  Duration       %s", check, dim.Render(res.Duration().Round(time.Millisecond).String())))
	if res.Err != nil {
		lines = append(lines, fmt.Sprintf("    %s  Error          %s", cross, red.Render(res.Err.Error())))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Delivery"))
	lines = append(lines, "")
	switch {
	case res.Status == job.StatusFailed:
		lines = append(lines, fmt.Sprintf("    %s  Email          %s", dot, dim.Render("not sent")))
	case res.DeliveryErr != nil:
		lines = append(lines, fmt.Sprintf("    %s  Email          %s", cross, red.Render(res.DeliveryErr.Error())))
	case res.Status == job.StatusNoData:
		lines = append(lines, fmt.Sprintf("    %s  Email          %s", check, yellow.Render("no-data notice to "+cfg.ReceiverEmail)))
	default:
		lines = append(lines, fmt.Sprintf("    %s  Email          %s", check, cyan.Render(cfg.ReceiverEmail)))
	}
	if res.CleanupErr != nil {
		lines = append(lines, fmt.Sprintf("    %s  Logout         %s", cross, red.Render(res.CleanupErr.Error())))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Logout         %s", check, dim.Render("done")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Outputs"))
	lines = append(lines, "")
	output := func(name, path string) {
		if path == "" {
			lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, name, dim.Render("disabled")))
			return
		}
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, name, dim.Render(shortenPath(path))))
	}
	output("Archive", cfg.ArchiveDir)
	output("History", cfg.HistoryDBPath)
	output("Metrics", cfg.MetricsTextfile)
	if res.SinkErr != nil {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", cross, "Errors", red.Render(res.SinkErr.Error())))
	}
	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

// historySchemaLine describes the history database for check-config without
// migrating it.
func historySchemaLine(ctx context.Context, dbPath string) string {
	if _, err := os.Stat(dbPath); err != nil {
		return "# history schema: not created yet"
	}
	cur, pending, err := history.SchemaStatus(ctx, dbPath)
	if err != nil {
		return fmt.Sprintf("# history schema: unreadable (%v)", err)
	}
	return fmt.Sprintf("# history schema: version %d, %d pending", cur, pending)
}

func printHistory(ctx context.Context, w io.Writer, cfg appConfig, limit int) error {
	if cfg.HistoryDBPath == "" {
		return startupError(fmt.Errorf("history-db-path is not configured"))
	}
	store, err := history.NewStore(cfg.HistoryDBPath, nil)
	if err != nil {
		return startupError(fmt.Errorf("opening history: %w", err))
	}
	defer store.Close()

	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return startupError(err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("STARTED", "WINDOW", "STATUS", "RECORDS", "DELIVERED", "ERROR")
	for _, r := range runs {
		errText := r.Error
		if errText == "" {
			errText = r.DeliveryError
		}
		t.Row(
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.WindowStart+" → "+r.WindowEnd,
			r.Status,
			strconv.Itoa(r.Records),
			strconv.FormatBool(r.Delivered),
			errText,
		)
	}
	fmt.Fprintln(w, t.Render())
	return nil
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
