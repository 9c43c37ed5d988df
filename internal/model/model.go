package model

import "time"

// Occurrence represents a single concrete instance of an event after
// recurrence expansion. Start and End stay in the timezone the feed declared
// them in; the sync driver forces them into the target zone just before
// duplicate detection and upload.
type Occurrence struct {
	// UID is the iCalendar UID of the source event. All occurrences expanded
	// from one recurring event share it, so identity is stable across runs.
	// Empty when the feed omitted a UID.
	UID string

	Summary string

	AllDay bool

	Start time.Time
	End   time.Time
}
