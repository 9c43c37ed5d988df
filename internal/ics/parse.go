package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ParsedEvent is the normalized representation of a single VEVENT from the
// feed. Recurrence expansion operates on this type.
type ParsedEvent struct {
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present) in the event's own timezone
	IsOverride bool       // true when this VEVENT overrides one recurring instance
}

// Parse reads an ICS payload into a list of ParsedEvent.
//
//   - TZID parameters are resolved by the underlying library, so Start/End
//     carry the zones the feed declared.
//   - All-day events are detected from the DTSTART value format.
//   - RRULE/EXDATE/RECURRENCE-ID are recorded but not expanded here;
//     expansion is done in expand.go.
func Parse(body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			// Skip the broken VEVENT but keep the rest of the feed.
			slog.Error("skipping unparsable VEVENT", "error", perr)
			continue
		}
		events = append(events, ev)
	}

	slog.Debug("feed parsed", "events", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	// UID is optional here: an event without one still syncs, it just gets a
	// fresh document id at upload time and cannot carry instance overrides.
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("parse DTSTART: %w", err)
	}
	out.Start = start

	// All-day events carry VALUE=DATE or a bare date value.
	if params := dtStartProp.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
	}
	if !strings.Contains(dtStartProp.Value, "T") {
		out.AllDay = true
	}

	end, err := ve.GetEndAt()
	if err != nil || end.IsZero() {
		// DTEND is optional; fall back to a zero-length occurrence.
		end = start
	}
	out.End = end

	// RRULE stays raw; expand.go feeds it to the recurrence library.
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE may appear multiple times, each holding a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, terr := parseICSTime(part, start.Location()); terr == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	// RECURRENCE-ID marks this VEVENT as an override of one instance.
	// Raw property name: the constant for it varies across library versions.
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, terr := parseICSTime(p.Value, start.Location()); terr == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseICSTime parses a bare ICS date or date-time string. Floating values
// are read in loc, which callers set to the event's DTSTART zone so EXDATE
// and RECURRENCE-ID land on the instants they refer to.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}

	// UTC form, e.g. 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Floating date-time, e.g. 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// Date only (all-day), e.g. 20250101
	return time.ParseInLocation("20060102", v, loc)
}
