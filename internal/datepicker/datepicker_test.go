package datepicker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/meetreport/internal/browser"
	"github.com/tinytelemetry/meetreport/internal/browser/browsertest"
)

func testControls() Controls {
	return Controls{
		Input:       "#start",
		MonthHeader: "#header",
		PrevMonth:   "#prev",
		Day:         func(label string) string { return "day:" + label },
	}
}

func TestOrdinal(t *testing.T) {
	want := map[int]string{
		1: "st", 2: "nd", 3: "rd", 21: "st", 22: "nd", 23: "rd", 31: "st",
	}
	for day := 1; day <= 31; day++ {
		expected, ok := want[day]
		if !ok {
			expected = "th"
		}
		assert.Equal(t, expected, Ordinal(day), "day %d", day)
	}
}

func TestDayAndMonthLabel(t *testing.T) {
	d := time.Date(2025, time.September, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Choose Thursday, September 4th, 2025", DayLabel(d))
	assert.Equal(t, "September 2025", MonthLabel(d))

	d = time.Date(2025, time.August, 22, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Choose Friday, August 22nd, 2025", DayLabel(d))
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC)

	w := Window(now, 1)
	assert.Equal(t, "2025-02-28", w.StartLabel())
	assert.Equal(t, "2025-03-01", w.EndLabel())

	for offset := 1; offset <= 31; offset++ {
		w := Window(now, offset)
		assert.Equal(t, offset, int(w.End.Sub(w.Start).Hours()/24), "offset %d", offset)
	}
}

func TestSelect_SameMonth(t *testing.T) {
	now := time.Date(2025, time.September, 5, 8, 0, 0, 0, time.UTC)
	page := browsertest.New().SetText("#header", "September 2025")

	w, err := NewPicker(testControls(), 5, nil).Select(context.Background(), page, now, 1)
	require.NoError(t, err)

	assert.Equal(t, "2025-09-04", w.StartLabel())
	assert.Equal(t, 0, page.Count("click #prev"))
	assert.Equal(t, 1, page.Count("click day:Choose Thursday, September 4th, 2025"))
}

func TestSelect_StepsBackAcrossYear(t *testing.T) {
	now := time.Date(2025, time.January, 2, 8, 0, 0, 0, time.UTC)
	months := []string{"January 2025", "December 2024", "November 2024"}
	idx := 0

	page := browsertest.New().SetText("#header", months[0])
	page.OnClick("#prev", func(p *browsertest.Page) error {
		idx++
		p.SetText("#header", months[idx])
		return nil
	})

	w, err := NewPicker(testControls(), 5, nil).Select(context.Background(), page, now, 40)
	require.NoError(t, err)

	assert.Equal(t, "2024-11-23", w.StartLabel())
	assert.Equal(t, 2, page.Count("click #prev"))
	assert.Equal(t, 1, page.Count("click day:Choose Saturday, November 23rd, 2024"))
}

func TestSelect_BoundedWhenMonthNeverShows(t *testing.T) {
	now := time.Date(2025, time.September, 5, 8, 0, 0, 0, time.UTC)
	page := browsertest.New().SetText("#header", "March 1999")

	_, err := NewPicker(testControls(), 3, nil).Select(context.Background(), page, now, 1)
	require.ErrorIs(t, err, ErrControlNotFound)
	assert.Equal(t, 3, page.Count("click #prev"))
	assert.Zero(t, page.CountPrefix("click day:"))
}

func TestSelect_MissingHeaderCountsAsStep(t *testing.T) {
	now := time.Date(2025, time.September, 5, 8, 0, 0, 0, time.UTC)
	page := browsertest.New()

	_, err := NewPicker(testControls(), 2, nil).Select(context.Background(), page, now, 1)
	require.ErrorIs(t, err, ErrControlNotFound)
	assert.Equal(t, 2, page.Count("click #prev"))
}

func TestSelect_OpenFailure(t *testing.T) {
	now := time.Date(2025, time.September, 5, 8, 0, 0, 0, time.UTC)
	boom := fmt.Errorf("no such node")
	page := browsertest.New().Fail("click #start", boom)

	_, err := NewPicker(testControls(), 2, nil).Select(context.Background(), page, now, 1)
	assert.ErrorIs(t, err, boom)
}

func TestSelect_MissingControlsAreTerminal(t *testing.T) {
	now := time.Date(2025, time.September, 5, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		call   string
		err    error
	}{
		{"prev month times out", "August 2025", "click #prev", browser.ErrNavigationTimeout},
		{"prev month missing", "August 2025", "click #prev", browser.ErrNotFound},
		{"day missing", "September 2025", "click day:Choose Thursday, September 4th, 2025", browser.ErrNotFound},
		{"day times out", "September 2025", "click day:Choose Thursday, September 4th, 2025", browser.ErrNavigationTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.New().SetText("#header", tt.header).Fail(tt.call, tt.err)

			_, err := NewPicker(testControls(), 3, nil).Select(context.Background(), page, now, 1)
			require.ErrorIs(t, err, ErrControlNotFound)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, page.Count(tt.call))
		})
	}
}

func TestSelect_OtherClickErrorsPassThrough(t *testing.T) {
	now := time.Date(2025, time.September, 5, 8, 0, 0, 0, time.UTC)
	boom := fmt.Errorf("detached frame")
	page := browsertest.New().SetText("#header", "August 2025").Fail("click #prev", boom)

	_, err := NewPicker(testControls(), 3, nil).Select(context.Background(), page, now, 1)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrControlNotFound)
}
