package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"calmigrate/internal/replayer"
)

const timeLayout = "2006-01-02 15:04:05"

// basicAuthTransport adds Basic Auth and a User-Agent to every request.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "calmigrate/1.0")
	return t.transport.RoundTrip(req)
}

// Creator writes events into a named collection on a CalDAV server.
type Creator struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	endpoint     string
	calendarURL  string
	mailbox      string
}

// NewCreator connects to the CalDAV endpoint and locates the named calendar.
func NewCreator(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName, mailbox string) (*Creator, error) {
	httpClient := &http.Client{Transport: &basicAuthTransport{
		username:  username,
		password:  password,
		transport: http.DefaultTransport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	c := &Creator{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		endpoint:     strings.TrimSuffix(endpoint, "/") + "/",
		mailbox:      mailbox,
	}

	calendarURL, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar %q: %w", calendarName, err)
	}
	c.calendarURL = calendarURL
	logger.Info("Found destination CalDAV calendar", "url", calendarURL)
	return c, nil
}

// Create PUTs one VEVENT into the calendar collection.
func (c *Creator) Create(ctx context.Context, inv replayer.Invocation) error {
	vevent, err := toICal(inv)
	if err != nil {
		return err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calmigrate//EN")
	cal.Children = append(cal.Children, vevent)

	uid, _ := vevent.Props.Text(ical.PropUID)
	// The event path must be relative to the endpoint for the webdav client.
	eventPath := path.Join(strings.TrimPrefix(c.calendarURL, c.endpoint), uid+".ics")

	writer, err := c.webdavClient.Create(ctx, eventPath)
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	defer writer.Close()

	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}

	c.logger.Info("Created event on CalDAV server", "title", inv.Title)
	return nil
}

// Describe renders the PUT Create would perform.
func (c *Creator) Describe(inv replayer.Invocation) string {
	return fmt.Sprintf("caldav PUT %q [%s -> %s] to %s", inv.Title, inv.Start, inv.End, c.calendarURL)
}

// toICal converts one invocation to an ical VEVENT.
func toICal(inv replayer.Invocation) (*ical.Component, error) {
	start, err := time.ParseInLocation(timeLayout, inv.Start, time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad start time %q: %w", inv.Start, err)
	}
	end, err := time.ParseInLocation(timeLayout, inv.End, time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad end time %q: %w", inv.End, err)
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uuid.New().String())
	ve.Props.SetText(ical.PropSummary, inv.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end)

	if inv.Description != "" {
		ve.Props.SetText(ical.PropDescription, inv.Description)
	}
	for _, attendee := range strings.Split(inv.Attendees, ",") {
		if attendee == "" {
			continue
		}
		p := ical.NewProp(ical.PropAttendee)
		p.SetText("mailto:" + attendee)
		ve.Props.Add(p)
	}
	return ve, nil
}

// findCalendar discovers the server's calendars and returns the URL of the
// one with the matching name.
func (c *Creator) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return strings.TrimSuffix(c.endpoint, "/") + cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name %q", name)
}
