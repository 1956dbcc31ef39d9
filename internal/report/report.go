// Package report renders meeting records into an in-memory XLSX workbook.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/tinytelemetry/meetreport/internal/model"
)

const (
	// SheetName is the worksheet holding the records.
	SheetName = "Failed Meetings"
	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	fileNamePrefix = "meetingsLog_"
	fileExt        = ".xlsx"
)

// FileName names the spreadsheet after the reporting window.
func FileName(w model.DateWindow) string {
	return fileNamePrefix + w.StartLabel() + "_" + w.EndLabel() + fileExt
}

// FilePattern globs every file produced by FileName.
const FilePattern = fileNamePrefix + "*" + fileExt

// Build writes a header row followed by one row per record, in order.
// Zero records yield a headers-only workbook.
func Build(records []model.MeetingRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("report: rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("report: header style: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return nil, fmt.Errorf("report: stream writer: %w", err)
	}
	if err := sw.SetColWidth(1, len(model.Columns), 24); err != nil {
		return nil, fmt.Errorf("report: column width: %w", err)
	}

	header := make([]interface{}, len(model.Columns))
	for i, col := range model.Columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: col}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("report: header row: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("report: row %d: %w", i+2, err)
		}
		vals := rec.Values()
		row := make([]interface{}, len(vals))
		for j, v := range vals {
			row[j] = v
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, fmt.Errorf("report: row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("report: flush: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("report: encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
