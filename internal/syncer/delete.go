package syncer

import (
	"context"
	"fmt"
	"log/slog"
)

// DeleteAll removes every event object from the target calendar and returns
// how many were deleted. The first failed deletion aborts the run; the count
// then reflects a partial wipe.
func (e *Engine) DeleteAll(ctx context.Context) (int, error) {
	calendar, err := e.client.FindCalendar(ctx, e.cfg.TargetCalendarName)
	if err != nil {
		return 0, err
	}
	objects, err := e.client.ListEvents(ctx, calendar.Path)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	slog.Info("deleting all events", "calendar", calendar.Name, "events", len(objects))

	deleted := 0
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		slog.Info("deleting event", "summary", eventSummary(obj), "path", obj.Path)
		if err := e.client.DeleteObject(ctx, obj.Path); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", obj.Path, err)
		}
		deleted++
	}

	slog.Info("all events deleted", "deleted", deleted)
	return deleted, nil
}
