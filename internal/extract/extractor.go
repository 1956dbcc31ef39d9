// Package extract reads the failed meetings table page by page.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinytelemetry/meetreport/internal/browser"
	"github.com/tinytelemetry/meetreport/internal/model"
)

// Controls are the table selectors the extractor uses.
type Controls struct {
	NoResults string
	Summary   string
	Page      func(n int) string
	Rows      string
	Cells     string
}

// Extractor collects every row of the results table.
type Extractor struct {
	controls Controls
	logger   *slog.Logger
}

// NewExtractor returns an extractor. A nil logger uses slog.Default.
func NewExtractor(controls Controls, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{controls: controls, logger: logger}
}

// ExtractAll returns the records of every page in page order, then row
// order. It returns no records when the empty-result marker is shown.
func (e *Extractor) ExtractAll(ctx context.Context, page browser.Page) ([]model.MeetingRecord, error) {
	empty, err := page.Visible(ctx, e.controls.NoResults)
	if err != nil {
		return nil, fmt.Errorf("check empty marker: %w", err)
	}
	if empty {
		e.logger.Info("no failed meetings in window")
		return nil, nil
	}

	text, err := page.Text(ctx, e.controls.Summary)
	if err != nil {
		return nil, fmt.Errorf("read pagination summary: %w", err)
	}
	summary, err := ParseSummary(text)
	if err != nil {
		return nil, err
	}
	pages := summary.PageCount()
	e.logger.Info("pagination summary",
		"total", summary.Total, "per_page", summary.PageSize(), "pages", pages)

	if pages == 1 {
		return e.scrape(ctx, page)
	}

	var records []model.MeetingRecord
	for n := 1; n <= pages; n++ {
		if err := page.WaitIdle(ctx); err != nil {
			return nil, err
		}
		e.logger.Debug("processing page", "page", n)
		if err := page.Click(ctx, e.controls.Page(n)); err != nil {
			return nil, fmt.Errorf("open page %d: %w", n, err)
		}
		if err := page.WaitIdle(ctx); err != nil {
			return nil, err
		}
		rows, err := e.scrape(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		records = append(records, rows...)
	}
	return records, nil
}

func (e *Extractor) scrape(ctx context.Context, page browser.Page) ([]model.MeetingRecord, error) {
	rows, err := page.Rows(ctx, e.controls.Rows, e.controls.Cells)
	if err != nil {
		return nil, err
	}
	records := make([]model.MeetingRecord, 0, len(rows))
	for i, cells := range rows {
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}
		rec, ok := model.RecordFromCells(cells)
		if !ok {
			e.logger.Warn("skipping short table row", "row", i, "cells", len(cells))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
