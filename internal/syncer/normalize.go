package syncer

import "time"

// ForceZone reinterprets t's wall-clock fields in loc, discarding whatever
// zone or offset t carried. 14:00 UTC becomes 14:00 in loc, not a converted
// instant. Existing calendar events were stored with times forced the same
// way, so duplicate keys only line up if this stays a relabeling rather than
// a conversion. Applying it twice changes nothing.
func ForceZone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// Window is the inclusive time range within which occurrence starts are
// eligible for upload.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowAround computes the sync window for a run: one year back, two years
// forward from now.
func WindowAround(now time.Time) Window {
	return Window{
		Start: now.AddDate(-1, 0, 0),
		End:   now.AddDate(2, 0, 0),
	}
}

// Contains reports whether t falls inside the window, inclusive on both ends.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
