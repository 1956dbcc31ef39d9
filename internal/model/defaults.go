package model

import "time"

// Shared defaults used by the job runner and the CLI.
const (
	DateLayout = "2006-01-02"

	DefaultDayOffset      = 1
	DefaultActionTimeout  = 30 * time.Second
	DefaultIdleQuiet      = 500 * time.Millisecond
	DefaultPostLoginDelay = 5 * time.Second
	DefaultSlowMotion     = 50 * time.Millisecond
	DefaultMaxMonthSteps  = 24
	DefaultMailSubject    = "Failed Meetings Data Log"
	DefaultSMTPHost       = "smtp.gmail.com"
	DefaultSMTPPort       = 587
)
