// Package dav wraps the CalDAV operations the sync needs: calendar discovery
// by display name, event enumeration, uploads and deletions.
package dav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// ErrCalendarNotFound is returned when no calendar display name contains the
// configured target name.
var ErrCalendarNotFound = errors.New("calendar not found")

// basicAuthTransport injects Basic Auth credentials into every request.
type basicAuthTransport struct {
	Username string
	Password string
	Base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	return t.Base.RoundTrip(req)
}

// Client talks to one CalDAV server as one authenticated principal.
type Client struct {
	caldav *caldav.Client
}

// Connect builds a Client for the given server. No network traffic happens
// until the first operation.
func Connect(serverURL, username, password string, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("CalDAV URL is empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			Username: username,
			Password: password,
			Base:     http.DefaultTransport,
		},
		Timeout: timeout,
	}

	c, err := caldav.NewClient(httpClient, serverURL)
	if err != nil {
		return nil, fmt.Errorf("new caldav client: %w", err)
	}

	slog.Info("connecting to CalDAV server", "url", serverURL, "username", username)
	return &Client{caldav: c}, nil
}

// FindCalendar discovers the principal's calendars and returns the first one
// whose display name contains nameContains. The server URL does not have to
// point at the calendar home collection; the home set is resolved through the
// current-user-principal each time.
func (c *Client) FindCalendar(ctx context.Context, nameContains string) (caldav.Calendar, error) {
	principal, err := c.caldav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return caldav.Calendar{}, fmt.Errorf("find current user principal: %w", err)
	}
	homeSet, err := c.caldav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return caldav.Calendar{}, fmt.Errorf("find calendar home set: %w", err)
	}
	calendars, err := c.caldav.FindCalendars(ctx, homeSet)
	if err != nil {
		return caldav.Calendar{}, fmt.Errorf("list calendars: %w", err)
	}

	for _, cal := range calendars {
		if strings.Contains(cal.Name, nameContains) {
			slog.Debug("target calendar resolved", "name", cal.Name, "path", cal.Path)
			return cal, nil
		}
	}
	return caldav.Calendar{}, fmt.Errorf("%w: no calendar name contains %q", ErrCalendarNotFound, nameContains)
}

// ListEvents returns every event object stored in the calendar at
// calendarPath, with full calendar data.
func (c *Client) ListEvents(ctx context.Context, calendarPath string) ([]caldav.CalendarObject, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{
				{Name: ical.CompEvent},
			},
		},
	}

	objects, err := c.caldav.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", calendarPath, err)
	}
	return objects, nil
}

// PutEvent uploads one single-event calendar document to path.
func (c *Client) PutEvent(ctx context.Context, path string, cal *ical.Calendar) error {
	if _, err := c.caldav.PutCalendarObject(ctx, path, cal); err != nil {
		return fmt.Errorf("put calendar object %s: %w", path, err)
	}
	return nil
}

// DeleteObject removes the calendar object at path.
func (c *Client) DeleteObject(ctx context.Context, path string) error {
	if err := c.caldav.RemoveAll(ctx, path); err != nil {
		return fmt.Errorf("delete calendar object %s: %w", path, err)
	}
	return nil
}
