package ics

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"icalsync/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	// missingTitle is substituted when the feed omits SUMMARY, so every
	// occurrence carries a usable title for duplicate keys and logs.
	missingTitle = "No Title"
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the expansion, inclusive on both ends.
	// Occurrences are produced in the zone each event declared; no timezone
	// manipulation happens here.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means the default cap.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the materialized occurrence list and, when a rule hit
// the per-event cap, the UIDs that were truncated.
type ExpandResult struct {
	Occurrences     []model.Occurrence
	TruncatedEvents []string
}

// Expand turns parsed feed events into a finite, fully materialized slice of
// concrete occurrences within [RangeStart, RangeEnd]. It handles:
//
//   - single non-recurring events
//   - RRULE-based recurrence, seeded with the event's DTSTART
//   - EXDATE exception removal
//   - RECURRENCE-ID instance overrides
//   - all-day semantics
//
// The result is sorted by start time.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and their instance overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	all := make([]model.Occurrence, 0)
	for uid, baseEvents := range baseByUID {
		overrides := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			occs, hitCap := expandEvent(ev, overrides, cfg)
			if hitCap {
				truncated = true
			}
			all = append(all, occs...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			slog.Error("recurrence expansion truncated",
				"uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	slices.SortFunc(all, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})

	result.Occurrences = all
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Occurrence {
	var out []model.Occurrence

	start, end := ev.Start, ev.End
	if ev.AllDay {
		// All-day singles span [midnight, next midnight) in the event's zone,
		// unless an explicit DTEND stretches over more days.
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		if !end.After(start) {
			end = start.Add(24 * time.Hour)
		}
	}

	// Emit only events intersecting [RangeStart, RangeEnd].
	if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return out
	}

	if o, ok := overrideFor(overrides, ev.Start); ok {
		start, end, ev = o.Start, o.End, o
	}

	out = append(out, makeOccurrence(ev, start, end))
	return out
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	out := make([]model.Occurrence, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		slog.Error("failed to parse RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "error", err)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		// Align EXDATE instants with the event's zone before exclusion.
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between wants the range in the event's own location.
	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	duration := ev.End.Sub(ev.Start)
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			// All-day instances span [midnight, next midnight) in the event's zone.
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(duration)
		}

		instEv, start, end := ev, occStart, occEnd
		if o, ok := overrideFor(overrides, occStart); ok {
			instEv, start, end = o, o.Start, o.End
		}

		out = append(out, makeOccurrence(instEv, start, end))
	}

	return out, hitCap
}

// overrideFor finds an override whose RECURRENCE-ID names the given instance
// start, compared as instants.
func overrideFor(overrides []ParsedEvent, instanceStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.Equal(instanceStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeOccurrence(ev ParsedEvent, start, end time.Time) model.Occurrence {
	summary := ev.Summary
	if summary == "" {
		summary = missingTitle
	}
	return model.Occurrence{
		UID:     ev.UID,
		Summary: summary,
		AllDay:  ev.AllDay,
		Start:   start,
		End:     end,
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
