package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"calmigrate/internal/models"
)

// EventLister is the slice of the Graph client the Exporter depends on.
type EventLister interface {
	ListCalendarEvents(ctx context.Context, userEmail string) ([]json.RawMessage, error)
}

// Exporter runs stage one of the pipeline: fetch every calendar event for a
// user and write the raw payloads to a structured JSON file.
type Exporter struct {
	source EventLister
	logger *slog.Logger
}

func New(source EventLister, logger *slog.Logger) *Exporter {
	return &Exporter{source: source, logger: logger}
}

// Export fetches the user's events and writes the export envelope to outPath.
// pretty only affects formatting, never content.
func (e *Exporter) Export(ctx context.Context, userEmail, outPath string, pretty bool) (*models.Export, error) {
	fmt.Printf("Exporting calendar for %s\n", userEmail)

	events, err := e.source.ListCalendarEvents(ctx, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events for %s: %w", userEmail, err)
	}
	if events == nil {
		events = []json.RawMessage{}
	}

	export := &models.Export{
		Info: models.ExportInfo{
			ExportID:    uuid.New().String(),
			UserEmail:   userEmail,
			ExportDate:  time.Now().Format(time.RFC3339),
			TotalEvents: len(events),
		},
		Events: events,
	}

	var data []byte
	if pretty {
		data, err = json.MarshalIndent(export, "", "  ")
	} else {
		data, err = json.Marshal(export)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write export file: %w", err)
	}

	fmt.Printf("  exported %d events to %s\n", len(events), outPath)
	e.logger.Info("Export complete", "user", userEmail, "events", len(events), "file", outPath)
	return export, nil
}
