package replayer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// nullMarker is the literal placeholder the source data uses for an absent
// value, distinct from a truly empty string.
const nullMarker = "None"

const meetingURLLabel = "Meeting link: "

// CSV column order, as written by the Transformer.
const (
	colUserEmail = iota
	colEventID
	colTitle
	colDescription
	colStart
	colEnd
	colMeetingURL
	colAttendees
	colIsCancelled
	colCreatedDate
	colModifiedDate
	colRawEvent
	columnCount
)

// Invocation is one fully constructed destination creation call. Dry run and
// live mode build the exact same value; only execution differs.
type Invocation struct {
	Mailbox     string
	Title       string
	Description string
	Start       string // "2006-01-02 15:04:05", source-local time passed through
	End         string
	Attendees   string // ","-joined, empty when none
}

// Creator executes one creation invocation against a destination backend.
type Creator interface {
	Create(ctx context.Context, inv Invocation) error
	// Describe renders the exact operation Create would perform, for dry runs.
	Describe(inv Invocation) string
}

// Summary aggregates per-row outcomes for one replay pass. Skips are counted
// apart from failures; dry-run rows count as created.
type Summary struct {
	Processed int
	Created   int
	Failed    int
	Skipped   int
}

// Replayer runs stage three of the pipeline: one creation call per surviving
// CSV row, never aborting the batch on a single row.
type Replayer struct {
	creator Creator
	logger  *slog.Logger
	dryRun  bool
}

func New(creator Creator, logger *slog.Logger, dryRun bool) *Replayer {
	return &Replayer{creator: creator, logger: logger, dryRun: dryRun}
}

// DestinationMailbox maps a source address onto the destination domain,
// keeping the local part: jane.doe@contoso.com -> jane.doe@<domain>.
func DestinationMailbox(sourceEmail, destinationDomain string) string {
	local, _, _ := strings.Cut(sourceEmail, "@")
	return local + "@" + destinationDomain
}

// Replay processes the CSV at path in file order. Row-level problems are
// counted, not raised; only a missing or unreadable file is fatal.
func (r *Replayer) Replay(ctx context.Context, path, mailbox string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	mode := "live"
	if r.dryRun {
		mode = "dry run"
	}
	fmt.Printf("Replaying %s into %s (%s)\n", path, mailbox, mode)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = columnCount

	if _, err := reader.Read(); err != nil {
		return Summary{}, fmt.Errorf("failed to read header row: %w", err)
	}

	var sum Summary
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		sum.Processed++
		if err != nil {
			r.logger.Error("Malformed row", "line", line, "error", err)
			fmt.Printf("  line %d: FAILED (%v)\n", line, err)
			sum.Failed++
			continue
		}
		r.replayRow(ctx, record, mailbox, line, &sum)
	}

	r.printSummary(sum)
	return sum, nil
}

func (r *Replayer) replayRow(ctx context.Context, rec []string, mailbox string, line int, sum *Summary) {
	title := rec[colTitle]

	if cancelled, _ := strconv.ParseBool(rec[colIsCancelled]); cancelled {
		r.logger.Info("Skipping cancelled event", "line", line, "title", title)
		fmt.Printf("  line %d: SKIPPED (cancelled) %s\n", line, title)
		sum.Skipped++
		return
	}
	if title == "" || title == nullMarker {
		r.logger.Info("Skipping event without a title", "line", line)
		fmt.Printf("  line %d: SKIPPED (empty title)\n", line)
		sum.Skipped++
		return
	}

	inv, err := buildInvocation(rec, mailbox)
	if err != nil {
		r.logger.Error("Could not build creation call", "line", line, "title", title, "error", err)
		fmt.Printf("  line %d: FAILED (%v)\n", line, err)
		sum.Failed++
		return
	}

	if r.dryRun {
		fmt.Printf("  line %d: [DRY RUN] %s\n", line, r.creator.Describe(inv))
		sum.Created++
		return
	}

	if err := r.creator.Create(ctx, inv); err != nil {
		r.logger.Error("Creation failed", "line", line, "title", title, "error", err)
		fmt.Printf("  line %d: FAILED (%v)\n", line, err)
		sum.Failed++
		return
	}

	fmt.Printf("  line %d: CREATED %q (%s)\n", line, inv.Title, inv.Start)
	sum.Created++
}

// buildInvocation converts one CSV record into a destination creation call.
func buildInvocation(rec []string, mailbox string) (Invocation, error) {
	start, err := ConvertTimestamp(rec[colStart])
	if err != nil {
		return Invocation{}, fmt.Errorf("bad start time: %w", err)
	}
	end, err := ConvertTimestamp(rec[colEnd])
	if err != nil {
		return Invocation{}, fmt.Errorf("bad end time: %w", err)
	}

	description := rec[colDescription]
	if description == nullMarker {
		description = ""
	}
	if u := rec[colMeetingURL]; u != "" && u != nullMarker {
		if description != "" {
			description += "\n\n"
		}
		description += meetingURLLabel + u
	}

	return Invocation{
		Mailbox:     mailbox,
		Title:       rec[colTitle],
		Description: description,
		Start:       start,
		End:         end,
		Attendees:   ConvertAttendees(rec[colAttendees]),
	}, nil
}

// ConvertTimestamp rewrites a source timestamp such as
// "2025-10-23T08:00:00.0000000" or "2025-10-23T08:00:00Z" into the
// destination's "2025-10-23 08:00:00" form. Fractional seconds are truncated
// and any zone suffix is dropped; the local date and time-of-day pass through
// without timezone conversion.
func ConvertTimestamp(s string) (string, error) {
	base := s
	if i := strings.IndexAny(base, ".Z+"); i >= 0 {
		base = base[:i]
	}
	// A "-" after the time separator is a negative UTC offset.
	if i := strings.Index(base, "T"); i >= 0 {
		if j := strings.Index(base[i:], "-"); j >= 0 {
			base = base[:i+j]
		}
	}
	t, err := time.Parse("2006-01-02T15:04:05", base)
	if err != nil {
		return "", fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t.Format("2006-01-02 15:04:05"), nil
}

// ConvertAttendees rewrites the storage separator (";") to the destination
// separator (","), trimming whitespace and dropping empties so an empty
// source list stays an empty argument.
func ConvertAttendees(s string) string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" && p != nullMarker {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func (r *Replayer) printSummary(sum Summary) {
	mode := "live"
	if r.dryRun {
		mode = "dry run"
	}
	fmt.Printf("\nReplay complete (%s)\n", mode)
	fmt.Printf("  processed: %d\n", sum.Processed)
	fmt.Printf("  created:   %d\n", sum.Created)
	fmt.Printf("  failed:    %d\n", sum.Failed)
	fmt.Printf("  skipped:   %d\n", sum.Skipped)
}
