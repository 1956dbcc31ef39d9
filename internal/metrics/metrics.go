// Package metrics exposes run outcomes as Prometheus metrics written to a
// node_exporter textfile.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/tinytelemetry/meetreport/internal/job"
)

const (
	runsTotalName        = "meetreport_runs_total"
	deliveryFailuresName = "meetreport_delivery_failures_total"
)

// Recorder holds the run metrics in a private registry.
type Recorder struct {
	registry *prometheus.Registry
	textfile string

	// lastRunTimestamp is the unix time the last run finished.
	lastRunTimestamp prometheus.Gauge
	// lastRunSuccess is 1 when the last run delivered its email.
	lastRunSuccess prometheus.Gauge
	lastRunRecords prometheus.Gauge
	lastRunSeconds prometheus.Gauge

	// runsTotal counts runs by status: ok, no_data, failed.
	runsTotal        *prometheus.CounterVec
	deliveryFailures prometheus.Counter
}

var _ job.Sink = (*Recorder)(nil)

// NewRecorder registers the run metrics. When textfile is non-empty,
// Publish writes the registry there after every run, and the counters
// continue from the totals already in that file. An unreadable textfile is
// logged and the counters start from zero.
func NewRecorder(textfile string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetreport_last_run_timestamp_seconds",
			Help: "Unix time the last report run finished",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetreport_last_run_success",
			Help: "1 if the last run sent its email, 0 otherwise",
		}),
		lastRunRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetreport_last_run_records",
			Help: "Failed meetings extracted by the last run",
		}),
		lastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetreport_last_run_duration_seconds",
			Help: "Wall time of the last run in seconds",
		}),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: runsTotalName,
				Help: "Total number of report runs by status",
			},
			[]string{"status"},
		),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: deliveryFailuresName,
			Help: "Total number of runs whose email could not be sent",
		}),
	}
	r.registry.MustRegister(
		r.lastRunTimestamp,
		r.lastRunSuccess,
		r.lastRunRecords,
		r.lastRunSeconds,
		r.runsTotal,
		r.deliveryFailures,
	)
	if textfile != "" {
		if err := r.restore(textfile); err != nil {
			logger.Warn("metrics textfile not restored, counters start at zero",
				"path", textfile, "error", err)
		}
	}
	return r
}

// restore seeds the counters from a textfile written by an earlier run.
// A missing file is not an error.
func (r *Recorder) restore(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if mf, ok := families[runsTotalName]; ok {
		for _, m := range mf.GetMetric() {
			status := ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "status" {
					status = lp.GetValue()
				}
			}
			if status == "" || m.GetCounter().GetValue() <= 0 {
				continue
			}
			r.runsTotal.WithLabelValues(status).Add(m.GetCounter().GetValue())
		}
	}
	if mf, ok := families[deliveryFailuresName]; ok {
		for _, m := range mf.GetMetric() {
			if v := m.GetCounter().GetValue(); v > 0 {
				r.deliveryFailures.Add(v)
			}
		}
	}
	return nil
}

// Observe updates the metrics from one run result.
func (r *Recorder) Observe(res job.Result) {
	r.lastRunTimestamp.Set(float64(res.FinishedAt.Unix()))
	r.lastRunRecords.Set(float64(res.Records))
	r.lastRunSeconds.Set(res.Duration().Seconds())
	if res.Delivered() {
		r.lastRunSuccess.Set(1)
	} else {
		r.lastRunSuccess.Set(0)
	}
	r.runsTotal.WithLabelValues(string(res.Status)).Inc()
	if res.DeliveryErr != nil {
		r.deliveryFailures.Inc()
	}
}

// WriteTextfile writes the registry in text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// Name implements job.Sink.
func (r *Recorder) Name() string { return "metrics" }

// Publish observes the result and refreshes the textfile.
func (r *Recorder) Publish(_ context.Context, out job.Outcome) error {
	r.Observe(out.Result)
	if r.textfile == "" {
		return nil
	}
	return r.WriteTextfile(r.textfile)
}
