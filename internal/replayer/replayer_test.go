package replayer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testHeader = "user_email,event_id,event_name,event_description,start_date,end_date,meeting_url,attendees,is_cancelled,created_date,modified_date,raw_event"

// fakeCreator records every invocation it receives.
type fakeCreator struct {
	invocations []Invocation
	err         error
}

func (f *fakeCreator) Create(ctx context.Context, inv Invocation) error {
	f.invocations = append(f.invocations, inv)
	return f.err
}

func (f *fakeCreator) Describe(inv Invocation) string {
	return fmt.Sprintf("create %q for %s", inv.Title, inv.Mailbox)
}

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.csv")
	content := strings.Join(append([]string{testHeader}, lines...), "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestConvertTimestamp(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2025-10-23T08:00:00.0000000", "2025-10-23 08:00:00", false},
		{"2025-10-23T08:30:00", "2025-10-23 08:30:00", false},
		{"2025-10-23T08:00:00Z", "2025-10-23 08:00:00", false},
		{"2025-10-23T08:00:00.1234567+02:00", "2025-10-23 08:00:00", false},
		{"2025-10-23T08:00:00-05:00", "2025-10-23 08:00:00", false},
		{"2025-12-31T23:59:59.9999999", "2025-12-31 23:59:59", false},
		{"not a timestamp", "", true},
		{"", "", true},
		{"2025-10-23", "", true},
	}
	for _, c := range cases {
		got, err := ConvertTimestamp(c.in)
		if c.wantErr {
			require.Error(t, err, "input %q", c.in)
			continue
		}
		require.NoError(t, err, "input %q", c.in)
		require.Equal(t, c.want, got, "input %q", c.in)
		require.NotContains(t, got, "T")
		require.NotContains(t, got, ".")
	}
}

func TestConvertAttendees(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a@x.com;b@x.com", "a@x.com,b@x.com"},
		{"a@x.com; b@x.com", "a@x.com,b@x.com"},
		{"a@x.com;", "a@x.com"},
		{"a@x.com", "a@x.com"},
		{"", ""},
		{";", ""},
		{"None", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ConvertAttendees(c.in), "input %q", c.in)
	}
}

func TestDestinationMailbox(t *testing.T) {
	require.Equal(t, "jane.doe@example.org", DestinationMailbox("jane.doe@contoso.com", "example.org"))
	require.Equal(t, "bob@example.org", DestinationMailbox("bob", "example.org"))
}

func TestReplayFiltersAndCounts(t *testing.T) {
	path := writeCSV(t,
		`jane.doe@contoso.com,AAA1,Standup,Daily sync,2025-10-23T08:00:00.0000000,2025-10-23T08:30:00.0000000,,a@x.com;b@x.com,false,2025-10-01T00:00:00Z,2025-10-01T00:00:00Z,{}`,
		`jane.doe@contoso.com,AAA2,Cancelled thing,,2025-10-23T09:00:00.0000000,2025-10-23T10:00:00.0000000,,,true,2025-10-01T00:00:00Z,2025-10-01T00:00:00Z,{}`,
		`jane.doe@contoso.com,AAA3,,,2025-10-23T11:00:00.0000000,2025-10-23T12:00:00.0000000,,,false,2025-10-01T00:00:00Z,2025-10-01T00:00:00Z,{}`,
		`jane.doe@contoso.com,AAA4,Review,,2025-10-24T14:00:00.0000000,2025-10-24T15:00:00.0000000,,,false,2025-10-01T00:00:00Z,2025-10-01T00:00:00Z,{}`,
	)

	fake := &fakeCreator{}
	sum, err := New(fake, testLogger(), false).Replay(context.Background(), path, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 4, Created: 2, Failed: 0, Skipped: 2}, sum)

	require.Len(t, fake.invocations, 2)
	first := fake.invocations[0]
	require.Equal(t, "jane.doe@example.org", first.Mailbox)
	require.Equal(t, "Standup", first.Title)
	require.Equal(t, "2025-10-23 08:00:00", first.Start)
	require.Equal(t, "2025-10-23 08:30:00", first.End)
	require.Equal(t, "a@x.com,b@x.com", first.Attendees)
	require.Equal(t, "Review", fake.invocations[1].Title)
}

func TestReplaySkipsNullMarkerTitle(t *testing.T) {
	path := writeCSV(t,
		`jane.doe@contoso.com,AAA1,None,,2025-10-23T08:00:00.0000000,2025-10-23T08:30:00.0000000,,,false,,,{}`,
	)

	fake := &fakeCreator{}
	sum, err := New(fake, testLogger(), false).Replay(context.Background(), path, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 1, Skipped: 1}, sum)
	require.Empty(t, fake.invocations)
}

func TestReplayCancelledNeverCreated(t *testing.T) {
	// Cancelled wins regardless of the other fields, even with garbage times.
	path := writeCSV(t,
		`jane.doe@contoso.com,AAA1,Still cancelled,,garbage,garbage,,,true,,,{}`,
	)

	fake := &fakeCreator{}
	sum, err := New(fake, testLogger(), false).Replay(context.Background(), path, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 1, Skipped: 1}, sum)
	require.Empty(t, fake.invocations)
}

func TestReplayDryRunCountsAsCreated(t *testing.T) {
	rows := []string{
		`jane.doe@contoso.com,AAA1,Standup,Daily sync,2025-10-23T08:00:00.0000000,2025-10-23T08:30:00.0000000,,a@x.com;b@x.com,false,,,{}`,
		`jane.doe@contoso.com,AAA4,Review,,2025-10-24T14:00:00.0000000,2025-10-24T15:00:00.0000000,,,false,,,{}`,
	}
	path := writeCSV(t, rows...)

	fake := &fakeCreator{}
	sum, err := New(fake, testLogger(), true).Replay(context.Background(), path, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 2, Created: 2}, sum)
	require.Empty(t, fake.invocations, "dry run must not execute creations")
}

func TestReplayMalformedRowCountedFailed(t *testing.T) {
	path := writeCSV(t,
		`only,three,columns`,
		`jane.doe@contoso.com,AAA4,Review,,2025-10-24T14:00:00.0000000,2025-10-24T15:00:00.0000000,,,false,,,{}`,
	)

	fake := &fakeCreator{}
	sum, err := New(fake, testLogger(), false).Replay(context.Background(), path, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 2, Created: 1, Failed: 1}, sum)
	require.Len(t, fake.invocations, 1)
}

func TestReplayCreatorFailureContinues(t *testing.T) {
	path := writeCSV(t,
		`jane.doe@contoso.com,AAA1,First,,2025-10-23T08:00:00.0000000,2025-10-23T08:30:00.0000000,,,false,,,{}`,
		`jane.doe@contoso.com,AAA2,Second,,2025-10-24T14:00:00.0000000,2025-10-24T15:00:00.0000000,,,false,,,{}`,
	)

	fake := &fakeCreator{err: fmt.Errorf("backend down")}
	sum, err := New(fake, testLogger(), false).Replay(context.Background(), path, "jane.doe@example.org")
	require.NoError(t, err, "per-row failures never abort the batch")
	require.Equal(t, Summary{Processed: 2, Failed: 2}, sum)
	require.Len(t, fake.invocations, 2)
}

func TestReplayMissingFileIsFatal(t *testing.T) {
	_, err := New(&fakeCreator{}, testLogger(), false).Replay(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "x@example.org")
	require.Error(t, err)
}

func TestBuildInvocationMeetingURL(t *testing.T) {
	rec := make([]string, columnCount)
	rec[colTitle] = "Planning"
	rec[colDescription] = "Quarterly planning"
	rec[colStart] = "2025-10-23T08:00:00.0000000"
	rec[colEnd] = "2025-10-23T09:00:00.0000000"
	rec[colMeetingURL] = "https://teams.microsoft.com/l/meetup-join/abc"

	inv, err := buildInvocation(rec, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, "Quarterly planning\n\nMeeting link: https://teams.microsoft.com/l/meetup-join/abc", inv.Description)

	// The null marker is not a URL.
	rec[colMeetingURL] = "None"
	inv, err = buildInvocation(rec, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, "Quarterly planning", inv.Description)

	// No leading blank line when the description is empty.
	rec[colDescription] = ""
	rec[colMeetingURL] = "https://zoom.us/j/123"
	inv, err = buildInvocation(rec, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, "Meeting link: https://zoom.us/j/123", inv.Description)
}

func TestBuildInvocationIdenticalForDryRun(t *testing.T) {
	// Dry run and live mode share buildInvocation; the constructed value must
	// not depend on the mode.
	rec := make([]string, columnCount)
	rec[colTitle] = "Standup"
	rec[colStart] = "2025-10-23T08:00:00.0000000"
	rec[colEnd] = "2025-10-23T08:30:00.0000000"
	rec[colAttendees] = "a@x.com;b@x.com"

	a, err := buildInvocation(rec, "jane.doe@example.org")
	require.NoError(t, err)
	b, err := buildInvocation(rec, "jane.doe@example.org")
	require.NoError(t, err)
	require.Equal(t, a, b)
}
