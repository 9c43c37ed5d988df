package syncer

import (
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// Key identifies an event for duplicate detection: title plus the normalized
// start and end rendered as RFC 3339 strings. Two distinct events sharing all
// three map to the same key and the second one is treated as a duplicate.
type Key struct {
	Summary string
	Start   string
	End     string
}

// Index is the set of keys for events already present in the target calendar.
// It is rebuilt from the server on every run and grown as uploads succeed.
type Index map[Key]struct{}

// Has reports whether k is already indexed.
func (ix Index) Has(k Key) bool {
	_, ok := ix[k]
	return ok
}

// Add records k in the index.
func (ix Index) Add(k Key) {
	ix[k] = struct{}{}
}

// BuildIndex extracts a Key from every VEVENT in the stored calendar objects.
// Events missing DTSTART or DTEND are skipped: they can never be matched by a
// generated occurrence, which always carries both. Times are read as stored
// (previous runs wrote them with the forced target TZID); floating times fall
// back to loc.
func BuildIndex(objects []caldav.CalendarObject, loc *time.Location) Index {
	ix := make(Index)
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			key, ok := eventKey(comp, loc)
			if !ok {
				continue
			}
			ix.Add(key)
		}
	}
	return ix
}

// eventKey derives the duplicate-detection key for one stored VEVENT.
func eventKey(event *ical.Component, loc *time.Location) (Key, bool) {
	startProp := event.Props.Get(ical.PropDateTimeStart)
	endProp := event.Props.Get(ical.PropDateTimeEnd)
	if startProp == nil || endProp == nil {
		return Key{}, false
	}

	start, err := startProp.DateTime(loc)
	if err != nil {
		return Key{}, false
	}
	end, err := endProp.DateTime(loc)
	if err != nil {
		return Key{}, false
	}

	summary := ""
	if p := event.Props.Get(ical.PropSummary); p != nil {
		if text, err := p.Text(); err == nil {
			summary = text
		}
	}

	return Key{
		Summary: summary,
		Start:   start.Format(time.RFC3339),
		End:     end.Format(time.RFC3339),
	}, true
}

// eventSummary returns the SUMMARY of the first VEVENT in a stored object,
// for log lines.
func eventSummary(obj caldav.CalendarObject) string {
	if obj.Data == nil {
		return ""
	}
	for _, comp := range obj.Data.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		if p := comp.Props.Get(ical.PropSummary); p != nil {
			if text, err := p.Text(); err == nil {
				return text
			}
		}
	}
	return ""
}
