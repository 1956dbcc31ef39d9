package portal

import "fmt"

// Selectors locates every control of the meetings console the job touches.
type Selectors struct {
	LoginEmail    string
	LoginPassword string
	LoginSubmit   string
	Logout        string

	NoResults   string
	DateInput   string
	MonthHeader string
	PrevMonth   string
	DayFormat   string // fmt verb %s receives the day's aria-label
	Summary     string
	PageFormat  string // fmt verb %d receives the 1-based page number
	TableRows   string
	TableCells  string
}

// DefaultSelectors matches the console's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		LoginEmail:    `input[name="email"]`,
		LoginPassword: `input[name="password"]`,
		LoginSubmit:   `button[type="submit"]`,
		Logout:        `//button[contains(normalize-space(.), "Logout")]`,

		NoResults:   `//*[contains(normalize-space(text()), "No failed meetings found")]`,
		DateInput:   `input[placeholder="Select start date"]`,
		MonthHeader: `h2.react-datepicker__current-month`,
		PrevMonth:   `button.react-datepicker__navigation--previous`,
		DayFormat:   `div[aria-label='%s']`,
		Summary:     `nav[aria-label='Table navigation'] span`,
		PageFormat:  `(//nav[@aria-label='Table navigation']//*[self::a or self::button][normalize-space(.)='%d'])[1]`,
		TableRows:   `table tbody tr`,
		TableCells:  `td`,
	}
}

// Day returns the selector of the calendar day with the given aria-label.
func (s Selectors) Day(label string) string {
	return fmt.Sprintf(s.DayFormat, label)
}

// Page returns the selector of the numbered pagination control.
func (s Selectors) Page(n int) string {
	return fmt.Sprintf(s.PageFormat, n)
}
