// Package datepicker computes the reporting window and drives the
// react-datepicker calendar of the report filter to its start day.
package datepicker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tinytelemetry/meetreport/internal/browser"
	"github.com/tinytelemetry/meetreport/internal/model"
)

// ErrControlNotFound is returned when the calendar never shows the target
// month within the step limit, or when its navigation or day control is
// missing.
var ErrControlNotFound = errors.New("datepicker: calendar control not found")

// Controls are the calendar selectors the picker uses.
type Controls struct {
	Input       string
	MonthHeader string
	PrevMonth   string
	Day         func(label string) string
}

// Picker selects the window start day in the calendar popup.
type Picker struct {
	controls Controls
	maxSteps int
	logger   *slog.Logger
}

// NewPicker returns a picker that steps back at most maxSteps months.
func NewPicker(controls Controls, maxSteps int, logger *slog.Logger) *Picker {
	if maxSteps <= 0 {
		maxSteps = model.DefaultMaxMonthSteps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Picker{controls: controls, maxSteps: maxSteps, logger: logger}
}

// Window returns the reporting window for a run at now: from dayOffset
// calendar days back to today.
func Window(now time.Time, dayOffset int) model.DateWindow {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return model.DateWindow{
		Start: today.AddDate(0, 0, -dayOffset),
		End:   today,
	}
}

// Ordinal returns the English ordinal suffix for a day of month.
func Ordinal(day int) string {
	if (day >= 4 && day <= 20) || (day >= 24 && day <= 30) {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// DayLabel renders the aria-label of a calendar day control,
// e.g. "Choose Thursday, September 4th, 2025".
func DayLabel(t time.Time) string {
	return fmt.Sprintf("Choose %s, %s %d%s, %d",
		t.Weekday(), t.Month(), t.Day(), Ordinal(t.Day()), t.Year())
}

// MonthLabel renders the calendar header text, e.g. "September 2025".
func MonthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", t.Month(), t.Year())
}

// Select opens the calendar, pages back to the target month and clicks the
// target day. It returns the reporting window.
func (p *Picker) Select(ctx context.Context, page browser.Page, now time.Time, dayOffset int) (model.DateWindow, error) {
	window := Window(now, dayOffset)
	want := MonthLabel(window.Start)

	if err := page.Click(ctx, p.controls.Input); err != nil {
		return window, fmt.Errorf("open calendar: %w", err)
	}

	for step := 0; ; step++ {
		header, err := page.Text(ctx, p.controls.MonthHeader)
		if err != nil && !errors.Is(err, browser.ErrNotFound) {
			return window, fmt.Errorf("read calendar header: %w", err)
		}
		if strings.TrimSpace(header) == want {
			break
		}
		if step >= p.maxSteps {
			return window, fmt.Errorf("%w: %q not shown after %d steps (last header %q)",
				ErrControlNotFound, want, step, header)
		}
		if err := page.Click(ctx, p.controls.PrevMonth); err != nil {
			return window, controlError("previous month", err)
		}
	}

	label := DayLabel(window.Start)
	if err := page.Click(ctx, p.controls.Day(label)); err != nil {
		return window, controlError(fmt.Sprintf("pick day %q", label), err)
	}
	p.logger.Info("selected report window", "start", window.StartLabel(), "end", window.EndLabel())
	return window, nil
}

// controlError marks a click on a missing calendar control as terminal.
func controlError(step string, err error) error {
	if errors.Is(err, browser.ErrNotFound) || errors.Is(err, browser.ErrNavigationTimeout) {
		return fmt.Errorf("%w: %s: %w", ErrControlNotFound, step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}
