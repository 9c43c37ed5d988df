package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func wideRange() ExpandConfig {
	return ExpandConfig{
		RangeStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpandWeeklyCount(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	ev := ParsedEvent{
		UID:      "standup@example.com",
		Summary:  "Standup",
		Start:    time.Date(2025, 7, 7, 9, 0, 0, 0, ny),
		End:      time.Date(2025, 7, 7, 9, 30, 0, 0, ny),
		RawRRule: "FREQ=WEEKLY;COUNT=5",
	}

	res, err := Expand([]ParsedEvent{ev}, wideRange())
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 5)
	assert.Empty(t, res.TruncatedEvents)

	for i, occ := range res.Occurrences {
		wantStart := time.Date(2025, 7, 7+7*i, 9, 0, 0, 0, ny)
		assert.True(t, occ.Start.Equal(wantStart), "occurrence %d started %v, want %v", i, occ.Start, wantStart)
		assert.Equal(t, 30*time.Minute, occ.End.Sub(occ.Start))
		assert.Equal(t, "Standup", occ.Summary)
		assert.Equal(t, "standup@example.com", occ.UID)
	}
}

func TestExpandBoundsRecurrenceToRange(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	ev := ParsedEvent{
		UID:      "standup@example.com",
		Summary:  "Standup",
		Start:    time.Date(2025, 1, 6, 9, 0, 0, 0, ny),
		End:      time.Date(2025, 1, 6, 9, 30, 0, 0, ny),
		RawRRule: "FREQ=WEEKLY;COUNT=10",
	}

	res, err := Expand([]ParsedEvent{ev}, ExpandConfig{
		RangeStart: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Instances run Jan 6 through Mar 10; only Feb 3 onward fall in range.
	require.Len(t, res.Occurrences, 6)
	assert.True(t, res.Occurrences[0].Start.Equal(time.Date(2025, 2, 3, 9, 0, 0, 0, ny)))
}

func TestExpandExDateRemovesInstance(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	skipped := time.Date(2025, 7, 14, 9, 0, 0, 0, ny)
	ev := ParsedEvent{
		UID:      "standup@example.com",
		Summary:  "Standup",
		Start:    time.Date(2025, 7, 7, 9, 0, 0, 0, ny),
		End:      time.Date(2025, 7, 7, 9, 30, 0, 0, ny),
		RawRRule: "FREQ=WEEKLY;COUNT=4",
		ExDates:  []time.Time{skipped},
	}

	res, err := Expand([]ParsedEvent{ev}, wideRange())
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 3)
	for _, occ := range res.Occurrences {
		assert.False(t, occ.Start.Equal(skipped), "excluded instance must not appear")
	}
}

func TestExpandOverrideReplacesInstance(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	base := ParsedEvent{
		UID:      "standup@example.com",
		Summary:  "Standup",
		Start:    time.Date(2025, 7, 7, 9, 0, 0, 0, ny),
		End:      time.Date(2025, 7, 7, 9, 30, 0, 0, ny),
		RawRRule: "FREQ=WEEKLY;COUNT=3",
	}
	override := ParsedEvent{
		UID:        "standup@example.com",
		Summary:    "Standup (moved)",
		Start:      time.Date(2025, 7, 14, 11, 0, 0, 0, ny),
		End:        time.Date(2025, 7, 14, 11, 45, 0, 0, ny),
		Recurrence: timePtr(time.Date(2025, 7, 14, 9, 0, 0, 0, ny)),
		IsOverride: true,
	}

	res, err := Expand([]ParsedEvent{base, override}, wideRange())
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 3)

	moved := res.Occurrences[1]
	assert.Equal(t, "Standup (moved)", moved.Summary)
	assert.True(t, moved.Start.Equal(time.Date(2025, 7, 14, 11, 0, 0, 0, ny)))
	assert.Equal(t, 45*time.Minute, moved.End.Sub(moved.Start))

	assert.Equal(t, "Standup", res.Occurrences[0].Summary)
	assert.Equal(t, "Standup", res.Occurrences[2].Summary)
}

func TestExpandSingleEvent(t *testing.T) {
	ny := mustZone(t, "America/New_York")

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{
			name:  "inside the range",
			start: time.Date(2025, 7, 7, 9, 0, 0, 0, ny),
			end:   time.Date(2025, 7, 7, 9, 30, 0, 0, ny),
			want:  1,
		},
		{
			name:  "entirely before the range",
			start: time.Date(2024, 7, 7, 9, 0, 0, 0, ny),
			end:   time.Date(2024, 7, 7, 9, 30, 0, 0, ny),
			want:  0,
		},
		{
			name:  "straddling the range start",
			start: time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC),
			end:   time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC),
			want:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParsedEvent{UID: "one@example.com", Summary: "One-off", Start: tt.start, End: tt.end}
			res, err := Expand([]ParsedEvent{ev}, wideRange())
			require.NoError(t, err)
			assert.Len(t, res.Occurrences, tt.want)
		})
	}
}

func TestExpandAllDayRecurring(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	ev := ParsedEvent{
		UID:      "offsite@example.com",
		Summary:  "Offsite",
		AllDay:   true,
		Start:    time.Date(2025, 7, 7, 0, 0, 0, 0, ny),
		End:      time.Date(2025, 7, 7, 0, 0, 0, 0, ny),
		RawRRule: "FREQ=DAILY;COUNT=3",
	}

	res, err := Expand([]ParsedEvent{ev}, wideRange())
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 3)

	for i, occ := range res.Occurrences {
		assert.True(t, occ.AllDay)
		assert.Equal(t, 0, occ.Start.Hour(), "occurrence %d must start at midnight", i)
		assert.Equal(t, 24*time.Hour, occ.End.Sub(occ.Start))
	}
}

func TestExpandAllDaySingle(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	midnight := time.Date(2025, 7, 7, 0, 0, 0, 0, ny)

	tests := []struct {
		name    string
		end     time.Time
		wantEnd time.Time
	}{
		{
			name:    "no DTEND spans one full day",
			end:     midnight,
			wantEnd: midnight.Add(24 * time.Hour),
		},
		{
			name:    "explicit DTEND keeps the multi-day span",
			end:     time.Date(2025, 7, 10, 0, 0, 0, 0, ny),
			wantEnd: time.Date(2025, 7, 10, 0, 0, 0, 0, ny),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParsedEvent{
				UID:     "offsite@example.com",
				Summary: "Offsite",
				AllDay:  true,
				Start:   midnight,
				End:     tt.end,
			}

			res, err := Expand([]ParsedEvent{ev}, wideRange())
			require.NoError(t, err)
			require.Len(t, res.Occurrences, 1)

			occ := res.Occurrences[0]
			assert.True(t, occ.AllDay)
			assert.True(t, occ.Start.Equal(midnight))
			assert.True(t, occ.End.Equal(tt.wantEnd), "ended %v, want %v", occ.End, tt.wantEnd)
		})
	}
}

func TestExpandSubstitutesMissingTitle(t *testing.T) {
	ev := ParsedEvent{
		UID:   "untitled@example.com",
		Start: time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC),
	}

	res, err := Expand([]ParsedEvent{ev}, wideRange())
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, "No Title", res.Occurrences[0].Summary)
}

func TestExpandCapTruncatesRunawayRules(t *testing.T) {
	ev := ParsedEvent{
		UID:      "busy@example.com",
		Summary:  "Busy",
		Start:    time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY;COUNT=10",
	}

	cfg := wideRange()
	cfg.MaxOccurrencesPerEvent = 4
	res, err := Expand([]ParsedEvent{ev}, cfg)
	require.NoError(t, err)

	assert.Len(t, res.Occurrences, 4)
	assert.Equal(t, []string{"busy@example.com"}, res.TruncatedEvents)
}

func TestExpandSkipsInvalidRRule(t *testing.T) {
	ev := ParsedEvent{
		UID:      "bad@example.com",
		Summary:  "Bad Rule",
		Start:    time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=NOPE",
	}

	res, err := Expand([]ParsedEvent{ev}, wideRange())
	require.NoError(t, err, "a broken rule drops the event, not the run")
	assert.Empty(t, res.Occurrences)
}

func TestExpandSortsAcrossEvents(t *testing.T) {
	later := ParsedEvent{
		UID:     "later@example.com",
		Summary: "Later",
		Start:   time.Date(2025, 7, 7, 11, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 7, 7, 12, 0, 0, 0, time.UTC),
	}
	earlier := ParsedEvent{
		UID:     "earlier@example.com",
		Summary: "Earlier",
		Start:   time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 7, 7, 9, 30, 0, 0, time.UTC),
	}

	res, err := Expand([]ParsedEvent{later, earlier}, wideRange())
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 2)
	assert.Equal(t, "Earlier", res.Occurrences[0].Summary)
	assert.Equal(t, "Later", res.Occurrences[1].Summary)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	_, err := Expand(nil, ExpandConfig{
		RangeStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}
