package match

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultSlotHour and DefaultSlotMinute locate tonight's booking when no
	// slot time is configured.
	DefaultSlotHour   = 21
	DefaultSlotMinute = 0

	bookingMessage = "Successfully fetched Match Slot"
	inningsMessage = "Successfully fetched Innings"

	timestampLayout = "2006-01-02T15:04:05"
)

// ClientOption is a functional option for Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithSlotTime sets the local time of day used to look up the booking.
func WithSlotTime(hour, minute int) ClientOption {
	return func(cl *Client) {
		cl.slotHour = hour
		cl.slotMinute = minute
	}
}

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(cl *Client) {
		cl.now = now
	}
}

// Client talks to the scoring backend's bookings and innings endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	slotHour   int
	slotMinute int
	now        func() time.Time
}

// NewClient creates a Client for the given API base URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("match: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		slotHour:   DefaultSlotHour,
		slotMinute: DefaultSlotMinute,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// bookingEnvelope is the response of the bookings endpoint.
type bookingEnvelope struct {
	Message string     `json:"message"`
	Match   *wireMatch `json:"match"`
}

// CurrentMatch looks up the booking for today's configured slot time.
func (c *Client) CurrentMatch(ctx context.Context) (*Info, error) {
	now := c.now()
	slot := time.Date(now.Year(), now.Month(), now.Day(), c.slotHour, c.slotMinute, 0, 0, now.Location())

	q := url.Values{}
	q.Set("timestamp", slot.Format(timestampLayout))
	endpoint := fmt.Sprintf("%s/bookings/get_booking_by_time/?%s", c.baseURL, q.Encode())

	var env bookingEnvelope
	if err := c.getJSON(ctx, endpoint, &env); err != nil {
		return nil, fmt.Errorf("match: fetch booking: %w", err)
	}
	if env.Message != bookingMessage || env.Match == nil {
		return nil, fmt.Errorf("match: no booking for slot %s: %q", slot.Format(timestampLayout), env.Message)
	}
	return env.Match.toInfo(), nil
}

// inningsEnvelope is the response of the innings endpoint.
type inningsEnvelope struct {
	Message string `json:"message"`
	Innings *struct {
		Inning string `json:"inning"`
	} `json:"innings"`
}

// InningsPhase fetches the live innings phase for a match.
func (c *Client) InningsPhase(ctx context.Context, matchID string) (Phase, error) {
	q := url.Values{}
	q.Set("match_id", matchID)
	endpoint := fmt.Sprintf("%s/innings/get_innings?%s", c.baseURL, q.Encode())

	var env inningsEnvelope
	if err := c.getJSON(ctx, endpoint, &env); err != nil {
		return PhaseUnknown, fmt.Errorf("match: fetch innings: %w", err)
	}
	if env.Message != inningsMessage || env.Innings == nil {
		return PhaseUnknown, fmt.Errorf("match: no innings for match %s: %q", matchID, env.Message)
	}
	return ParsePhase(env.Innings.Inning)
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
