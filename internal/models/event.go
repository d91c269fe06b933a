package models

import "encoding/json"

// CalendarEvent is the flattened, provider-agnostic representation of one
// source calendar event. The Transformer writes one of these per CSV row and
// the Replayer reads them back; the record is never modified after it is
// written. Field order here is the CSV column order.
type CalendarEvent struct {
	UserEmail    string `json:"user_email" csv:"user_email"`
	EventID      string `json:"event_id" csv:"event_id"`
	Title        string `json:"event_name" csv:"event_name"`
	Description  string `json:"event_description" csv:"event_description"`
	StartTime    string `json:"start_date" csv:"start_date"`
	EndTime      string `json:"end_date" csv:"end_date"`
	MeetingURL   string `json:"meeting_url" csv:"meeting_url"`
	Attendees    string `json:"attendees" csv:"attendees"` // email addresses joined with ";"
	IsCancelled  bool   `json:"is_cancelled" csv:"is_cancelled"`
	CreatedDate  string `json:"created_date" csv:"created_date"`
	ModifiedDate string `json:"modified_date" csv:"modified_date"`
	RawEvent     string `json:"raw_event" csv:"raw_event"` // compact source payload, kept for debugging only
}

// ExportInfo describes one export batch.
type ExportInfo struct {
	ExportID    string `json:"export_id"`
	UserEmail   string `json:"user_email"`
	ExportDate  string `json:"export_date"`
	TotalEvents int    `json:"total_events"`
}

// Export is the structured intermediate file written by the Exporter and read
// by the Transformer. Events hold the raw provider payloads untouched.
type Export struct {
	Info   ExportInfo        `json:"export_info"`
	Events []json.RawMessage `json:"events"`
}
