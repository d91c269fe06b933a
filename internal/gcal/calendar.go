package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calmigrate/internal/replayer"
)

const timeLayout = "2006-01-02 15:04:05"

// Creator inserts events straight through the Google Calendar API, using a
// domain-wide-delegation service account impersonating the destination
// mailbox.
type Creator struct {
	service *calendar.Service
	mailbox string
	logger  *slog.Logger
}

// NewCreator loads the service-account key file and builds a Calendar service
// acting as mailbox.
func NewCreator(ctx context.Context, logger *slog.Logger, serviceAccountFile, mailbox string) (*Creator, error) {
	b, err := os.ReadFile(serviceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account file: %w", err)
	}
	conf.Subject = mailbox

	service, err := calendar.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Creator{service: service, mailbox: mailbox, logger: logger}, nil
}

// Create inserts one event into the mailbox's primary calendar.
func (c *Creator) Create(ctx context.Context, inv replayer.Invocation) error {
	start, err := time.ParseInLocation(timeLayout, inv.Start, time.Local)
	if err != nil {
		return fmt.Errorf("bad start time %q: %w", inv.Start, err)
	}
	end, err := time.ParseInLocation(timeLayout, inv.End, time.Local)
	if err != nil {
		return fmt.Errorf("bad end time %q: %w", inv.End, err)
	}

	event := &calendar.Event{
		Summary:     inv.Title,
		Description: inv.Description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	for _, a := range strings.Split(inv.Attendees, ",") {
		if a != "" {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: a})
		}
	}

	if _, err := c.service.Events.Insert("primary", event).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	c.logger.Info("Created event through the Calendar API", "mailbox", c.mailbox, "title", inv.Title)
	return nil
}

// Describe renders the API call Create would make.
func (c *Creator) Describe(inv replayer.Invocation) string {
	return fmt.Sprintf("calendar API insert %q [%s -> %s] into %s", inv.Title, inv.Start, inv.End, inv.Mailbox)
}
