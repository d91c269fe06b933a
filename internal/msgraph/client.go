package msgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	pageSize       = 1000
)

// Error kinds callers can test with errors.Is. None of them is retried here;
// the caller only needs to tell them apart.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("calendar not found")
	ErrTransient      = errors.New("transient network error")
)

// Client reads calendars through the Microsoft Graph API using app-only
// (client credentials) authentication.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	base       string
}

// NewClient builds a Graph client for the given tenant. The token is fetched
// lazily on the first request and refreshed by the oauth2 transport.
func NewClient(ctx context.Context, logger *slog.Logger, tenantID, clientID, clientSecret string) *Client {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return &Client{httpClient: cc.Client(ctx), logger: logger, base: defaultBaseURL}
}

type eventsPage struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// ListCalendarEvents fetches every event on the user's default calendar,
// following @odata.nextLink until the collection is exhausted. Events come
// back in the order Graph returns them.
func (c *Client) ListCalendarEvents(ctx context.Context, userEmail string) ([]json.RawMessage, error) {
	next := fmt.Sprintf("%s/users/%s/calendar/events?$top=%d", c.base, url.PathEscape(userEmail), pageSize)

	var events []json.RawMessage
	for next != "" {
		page, err := c.getPage(ctx, next)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Value...)
		next = page.NextLink
	}

	c.logger.Info("Fetched events from Microsoft Graph", "user", userEmail, "count", len(events))
	return events, nil
}

func (c *Client) getPage(ctx context.Context, pageURL string) (*eventsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Token endpoint rejections surface from the oauth2 transport.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: graph returned %s", ErrAuthentication, resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: graph returned %s", ErrNotFound, resp.Status)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: graph returned %s", ErrTransient, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("graph returned %s: %s", resp.Status, body)
	}

	var page eventsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode events page: %w", err)
	}
	return &page, nil
}
