package transformer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/gocarina/gocsv"

	"calmigrate/internal/models"
)

// ErrBadExport reports an export file without the expected top-level shape.
// Malformed individual events are skipped, not fatal.
var ErrBadExport = errors.New("export file missing events array")

// graphEvent is the subset of the Microsoft Graph event shape the pipeline
// extracts. Everything else stays inside the raw payload.
type graphEvent struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"bodyPreview"`
	Body        struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Start struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"end"`
	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Attendees []struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"attendees"`
	OnlineMeeting struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
	IsCancelled          bool   `json:"isCancelled"`
	CreatedDateTime      string `json:"createdDateTime"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
}

// Conferencing links recognized inside free text.
var meetingURLPattern = regexp.MustCompile(`https://[\w./?=&%~#@;+-]*(?:zoom\.us|teams\.microsoft\.com|teams\.live\.com|meet\.google\.com)/[\w./?=&%~#@;+-]+`)

// Stats reports what one transform pass did.
type Stats struct {
	Parsed  int // rows written to the CSV
	Skipped int // malformed events dropped
}

// Transformer runs stage two of the pipeline: flatten raw events into
// CalendarEvent rows.
type Transformer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Transform reads the export at inPath and writes one CSV row per event to
// outPath. A malformed individual event is skipped and counted; only a
// missing top-level events array aborts the stage.
func (t *Transformer) Transform(inPath, outPath string) (Stats, error) {
	fmt.Printf("Transforming %s\n", inPath)

	data, err := os.ReadFile(inPath)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read export file: %w", err)
	}

	var export models.Export
	if err := json.Unmarshal(data, &export); err != nil {
		return Stats{}, fmt.Errorf("failed to parse export file %s: %w", inPath, err)
	}
	if export.Events == nil {
		return Stats{}, fmt.Errorf("%s: %w", inPath, ErrBadExport)
	}

	var stats Stats
	rows := make([]*models.CalendarEvent, 0, len(export.Events))
	for i, raw := range export.Events {
		var ev graphEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.logger.Warn("Skipping malformed event", "index", i, "error", err)
			stats.Skipped++
			continue
		}
		rows = append(rows, flatten(&ev, raw, export.Info.UserEmail))
		stats.Parsed++
	}

	f, err := os.Create(outPath)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create events file: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return Stats{}, fmt.Errorf("failed to write events file: %w", err)
	}

	fmt.Printf("  wrote %d rows to %s (%d events skipped)\n", stats.Parsed, outPath, stats.Skipped)
	t.logger.Info("Transform complete", "rows", stats.Parsed, "skipped", stats.Skipped, "file", outPath)
	return stats, nil
}

func flatten(ev *graphEvent, raw json.RawMessage, userEmail string) *models.CalendarEvent {
	attendees := make([]string, 0, len(ev.Attendees))
	for _, a := range ev.Attendees {
		if a.EmailAddress.Address != "" {
			attendees = append(attendees, a.EmailAddress.Address)
		}
	}

	return &models.CalendarEvent{
		UserEmail:    userEmail,
		EventID:      ev.ID,
		Title:        ev.Subject,
		Description:  ev.BodyPreview,
		StartTime:    ev.Start.DateTime,
		EndTime:      ev.End.DateTime,
		MeetingURL:   meetingURL(ev),
		Attendees:    strings.Join(attendees, ";"),
		IsCancelled:  ev.IsCancelled,
		CreatedDate:  ev.CreatedDateTime,
		ModifiedDate: ev.LastModifiedDateTime,
		RawEvent:     compact(raw),
	}
}

// meetingURL derives the conferencing link for an event. The dedicated
// online-meeting field wins; after that the location, then the body text.
func meetingURL(ev *graphEvent) string {
	if u := ev.OnlineMeeting.JoinURL; u != "" {
		return u
	}
	if loc := ev.Location.DisplayName; loc != "" {
		if m := meetingURLPattern.FindString(loc); m != "" {
			return m
		}
		lower := strings.ToLower(loc)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return loc
		}
	}
	if m := meetingURLPattern.FindString(ev.BodyPreview); m != "" {
		return m
	}
	return meetingURLPattern.FindString(ev.Body.Content)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
