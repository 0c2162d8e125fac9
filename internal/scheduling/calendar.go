package scheduling

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// Event is a booking handed to the calendar backend. Start and End are
// storage-zone values; the backend persists them under that zone's label.
type Event struct {
	Title       string
	Description string
	Start       StorageTime
	End         StorageTime
}

// Calendar is the slot-availability and event-creation capability the engine
// books against.
type Calendar interface {
	// Available reports whether no existing event overlaps [start, end).
	Available(ctx context.Context, start, end StorageTime) (bool, error)
	// CreateEvent inserts the event and returns a link to it.
	CreateEvent(ctx context.Context, ev Event) (string, error)
}

// GoogleCalendar books against a single Google Calendar.
type GoogleCalendar struct {
	service    *gcal.Service
	calendarID string
	logger     *logging.Logger
}

// NewGoogleCalendar wraps a calendar/v3 service for one calendar ID.
func NewGoogleCalendar(service *gcal.Service, calendarID string, logger *logging.Logger) *GoogleCalendar {
	if service == nil {
		panic("scheduling: calendar service is required")
	}
	if calendarID == "" {
		panic("scheduling: calendar ID is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleCalendar{service: service, calendarID: calendarID, logger: logger}
}

// Available lists events in the UTC window and reports the slot free only
// when none come back.
func (c *GoogleCalendar) Available(ctx context.Context, start, end StorageTime) (bool, error) {
	result, err := c.service.Events.List(c.calendarID).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("scheduling: list events: %w", err)
	}
	c.logger.Info("availability window checked",
		"start_utc", start.UTC().Format(time.RFC3339),
		"end_utc", end.UTC().Format(time.RFC3339),
		"existing_events", len(result.Items),
	)
	return len(result.Items) == 0, nil
}

// CreateEvent inserts the event with fixed reminder overrides: an email a day
// ahead and a popup ten minutes ahead.
func (c *GoogleCalendar) CreateEvent(ctx context.Context, ev Event) (string, error) {
	body := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.RFC3339(),
			TimeZone: ev.Start.Zone(),
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.RFC3339(),
			TimeZone: ev.End.Zone(),
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := c.service.Events.Insert(c.calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("scheduling: insert event: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("scheduling: insert event returned no ID")
	}
	c.logger.Info("calendar event created", "event_id", created.Id, "link", created.HtmlLink)
	return created.HtmlLink, nil
}
