package syncer

import (
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"icalsync/internal/model"
)

const productID = "-//My Recurring Sync//example.com//"

// BuildEventObject serializes one already-normalized occurrence into a
// standalone single-event calendar document ready for upload. DTSTART and
// DTEND keep the occurrence's zone as a TZID parameter, so the stored event
// round-trips to the exact forced wall-clock times. The UID reuses the
// occurrence's stable identifier when the feed supplied one; otherwise a
// fresh one is generated per document.
func BuildEventObject(occ model.Occurrence) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")

	event := ical.NewEvent()

	uid := occ.UID
	if uid == "" {
		uid = uuid.New().String()
	}
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, occ.Start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, occ.End)
	event.Props.SetText(ical.PropSummary, occ.Summary)
	// Synced copies must not block free/busy lookups on the destination.
	event.Props.SetText(ical.PropTransparency, "TRANSPARENT")

	cal.Children = append(cal.Children, event.Component)
	return cal
}
