package model

import "time"

// Columns is the fixed column order of the failed meetings table and of
// every exported spreadsheet.
var Columns = []string{"Meeting ID", "Email", "Meeting Type", "Subject", "Date Time"}

// MeetingRecord is one row of the failed meetings table.
type MeetingRecord struct {
	MeetingID   string
	Email       string
	MeetingType string
	Subject     string
	DateTime    string
}

// Values returns the record fields in Columns order.
func (r MeetingRecord) Values() []string {
	return []string{r.MeetingID, r.Email, r.MeetingType, r.Subject, r.DateTime}
}

// RecordFromCells builds a record from table cells in Columns order.
// It reports false when fewer than len(Columns) cells are present.
func RecordFromCells(cells []string) (MeetingRecord, bool) {
	if len(cells) < len(Columns) {
		return MeetingRecord{}, false
	}
	return MeetingRecord{
		MeetingID:   cells[0],
		Email:       cells[1],
		MeetingType: cells[2],
		Subject:     cells[3],
		DateTime:    cells[4],
	}, true
}

// DateWindow is the reporting window of one run. Start is the day picked in
// the calendar, End is the day the run happened.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// StartLabel formats Start as YYYY-MM-DD.
func (w DateWindow) StartLabel() string {
	return w.Start.Format(DateLayout)
}

// EndLabel formats End as YYYY-MM-DD.
func (w DateWindow) EndLabel() string {
	return w.End.Format(DateLayout)
}

// String renders the window as "start..end".
func (w DateWindow) String() string {
	return w.StartLabel() + ".." + w.EndLabel()
}
