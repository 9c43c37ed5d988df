// Package syncer implements the occurrence pipeline: expanding the fetched
// feed, forcing times into the target zone, filtering to the sync window,
// deduplicating against the target calendar, and uploading what remains.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"icalsync/internal/config"
	"icalsync/internal/ics"
	"icalsync/internal/model"
)

// FeedFetcher retrieves the raw ICS feed body.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (ics.FetchResult, error)
}

// CalendarClient is the slice of the CalDAV client the syncer depends on.
// *dav.Client satisfies it; tests substitute a stub.
type CalendarClient interface {
	FindCalendar(ctx context.Context, nameContains string) (caldav.Calendar, error)
	ListEvents(ctx context.Context, calendarPath string) ([]caldav.CalendarObject, error)
	PutEvent(ctx context.Context, path string, cal *ical.Calendar) error
	DeleteObject(ctx context.Context, path string) error
}

// Stats counts the terminal state of every occurrence in one run.
type Stats struct {
	Expanded    int
	OutOfWindow int
	Duplicates  int
	Uploaded    int
	Failed      int
}

// Engine drives sync and delete runs against the target calendar.
type Engine struct {
	cfg     *config.Config
	fetcher FeedFetcher
	client  CalendarClient
	loc     *time.Location

	// DryRun runs the full pipeline but skips the actual uploads.
	DryRun bool

	now func() time.Time
}

// New builds an Engine from validated configuration.
func New(cfg *config.Config, fetcher FeedFetcher, client CalendarClient) (*Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load target timezone: %w", err)
	}
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		client:  client,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// Run executes one full sync: fetch, expand, filter, dedup, upload.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	feed, err := e.fetcher.Fetch(ctx, e.cfg.ICSURL)
	if err != nil {
		return stats, err
	}
	events, err := ics.Parse(feed.Body)
	if err != nil {
		return stats, err
	}

	// Window bounds are computed in UTC; comparisons are instant-based.
	window := WindowAround(e.now().UTC())
	expansion, err := ics.Expand(events, ics.ExpandConfig{
		RangeStart: window.Start,
		RangeEnd:   window.End,
	})
	if err != nil {
		return stats, err
	}
	occurrences := expansion.Occurrences

	calendar, err := e.client.FindCalendar(ctx, e.cfg.TargetCalendarName)
	if err != nil {
		return stats, err
	}
	objects, err := e.client.ListEvents(ctx, calendar.Path)
	if err != nil {
		return stats, fmt.Errorf("list existing events: %w", err)
	}
	index := BuildIndex(objects, e.loc)
	slog.Info("existing events indexed",
		"calendar", calendar.Name, "indexed", len(index), "expanded", len(occurrences))

	stats, err = e.process(ctx, calendar.Path, occurrences, index, window)
	stats.Expanded = len(occurrences)
	if err != nil {
		return stats, err
	}

	slog.Info("recurring sync complete",
		"uploaded", stats.Uploaded,
		"duplicates", stats.Duplicates,
		"out_of_window", stats.OutOfWindow,
		"failed", stats.Failed,
		"dry_run", e.DryRun,
	)
	return stats, nil
}

// process walks the occurrence list through the per-occurrence state machine.
// Terminal states: out-of-window, duplicate, uploaded, failed. A failed
// upload never stops the run; only context cancellation does.
func (e *Engine) process(ctx context.Context, calendarPath string, occurrences []model.Occurrence, index Index, window Window) (Stats, error) {
	var stats Stats

	for _, occ := range occurrences {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Window membership is decided on the start as the feed declared it,
		// before any forcing.
		if !window.Contains(occ.Start) {
			stats.OutOfWindow++
			slog.Debug("occurrence outside sync window", "summary", occ.Summary, "start", occ.Start)
			continue
		}

		normalized := occ
		normalized.Start = ForceZone(occ.Start, e.loc)
		normalized.End = ForceZone(occ.End, e.loc)

		key := Key{
			Summary: normalized.Summary,
			Start:   normalized.Start.Format(time.RFC3339),
			End:     normalized.End.Format(time.RFC3339),
		}
		if index.Has(key) {
			stats.Duplicates++
			slog.Info("skipping duplicate", "summary", normalized.Summary, "start", normalized.Start)
			continue
		}

		if e.DryRun {
			stats.Uploaded++
			index.Add(key)
			slog.Info("would add occurrence",
				"summary", normalized.Summary, "start", normalized.Start, "end", normalized.End)
			continue
		}

		object := BuildEventObject(normalized)
		path := calendarPath + uuid.New().String() + ".ics"
		slog.Info("adding occurrence",
			"summary", normalized.Summary, "start", normalized.Start, "end", normalized.End)
		if err := e.client.PutEvent(ctx, path, object); err != nil {
			stats.Failed++
			slog.Error("failed to add occurrence", "summary", normalized.Summary, "error", err)
			continue
		}

		// Record the key before moving on so a second identical occurrence
		// in the same run is classified as a duplicate.
		index.Add(key)
		stats.Uploaded++
	}

	return stats, nil
}
