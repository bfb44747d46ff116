// Package stream maintains the push connection to the commentary publisher.
//
// A Client owns one WebSocket subscription per match. On every (re)connect it
// first replays missed events through the REST catch-up endpoint, anchored at
// the queue's checkpoint, then reads push frames until the connection drops.
// Reconnection uses exponential backoff with jitter and continues until the
// client is closed or its context is cancelled.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/ovalsounds/stumpcast/internal/event"
	"github.com/ovalsounds/stumpcast/internal/observe"
	"github.com/ovalsounds/stumpcast/internal/queue"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second

	dialTimeout    = 10 * time.Second
	catchUpTimeout = 10 * time.Second

	keepaliveInterval = 30 * time.Second
	keepaliveTimeout  = 10 * time.Second
)

// Status is the coarse connection state exposed for readiness checks.
type Status int32

const (
	// StatusReconnecting means no connection is currently up; the client is
	// dialing or waiting out a backoff. This is also the initial state.
	StatusReconnecting Status = iota

	// StatusConnected means the push connection is established.
	StatusConnected

	// StatusClosed means the client has been stopped and will not reconnect.
	StatusClosed
)

// String returns the wire spelling of the status.
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "reconnecting"
	}
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithAuthToken sets the bearer token sent on publisher requests.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithHTTPClient overrides the HTTP client used for catch-up fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff overrides the reconnect backoff window.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client subscribes to live commentary for one match and feeds the queue.
//
// All methods are safe for concurrent use. Run must be called exactly once.
type Client struct {
	apiBase    string
	authToken  string
	queue      *queue.Queue
	metrics    *observe.Metrics
	httpClient *http.Client

	initialBackoff time.Duration
	maxBackoff     time.Duration

	status atomic.Int32

	mu      sync.Mutex
	matchID string
	conn    *websocket.Conn

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Client for the given API base URL and match.
func New(apiBase, matchID string, q *queue.Queue, opts ...Option) (*Client, error) {
	if apiBase == "" {
		return nil, fmt.Errorf("stream: API base URL is required")
	}
	if matchID == "" {
		return nil, fmt.Errorf("stream: match id is required")
	}
	if q == nil {
		return nil, fmt.Errorf("stream: queue is required")
	}

	c := &Client{
		apiBase:        strings.TrimSuffix(apiBase, "/"),
		matchID:        matchID,
		queue:          q,
		httpClient:     &http.Client{Timeout: catchUpTimeout},
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	return Status(c.status.Load())
}

// Switch retargets the client at a different match. The active connection is
// closed so the run loop resubscribes under the new id.
func (c *Client) Switch(matchID string) {
	c.mu.Lock()
	changed := c.matchID != matchID
	c.matchID = matchID
	conn := c.conn
	c.mu.Unlock()

	if changed && conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "match switch")
	}
}

// Close stops the client. Safe to call multiple times. A blocked Run returns
// shortly after.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.done)
	})

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
}

// Run drives the connect / read / reconnect cycle until ctx is cancelled or
// the client is closed. It returns ctx.Err() on cancellation and nil on Close.
func (c *Client) Run(ctx context.Context) error {
	defer c.status.Store(int32(StatusClosed))

	backoff := c.initialBackoff
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		matchID := c.currentMatch()
		c.catchUp(ctx, matchID)

		connected, err := c.runConnection(ctx, matchID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-c.done:
			return nil
		default:
		}
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}

		if connected {
			backoff = c.initialBackoff
			attempt = 0
		}
		attempt++
		c.status.Store(int32(StatusReconnecting))
		c.metrics.RecordReconnect(ctx)

		wait := jitter(backoff)
		slog.Info("reconnecting to commentary stream",
			"match_id", matchID,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) currentMatch() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

// catchUp replays events missed while disconnected. Best-effort: any failure
// is logged and the push connection proceeds regardless.
func (c *Client) catchUp(ctx context.Context, matchID string) {
	u, err := url.Parse(c.apiBase + "/commentary/missed-events")
	if err != nil {
		slog.Debug("missed-events URL invalid", "error", err)
		return
	}
	q := u.Query()
	q.Set("match_id", matchID)
	if last := c.queue.Checkpoint(); last != "" {
		q.Set("after_id", last)
	}
	u.RawQuery = q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, catchUpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		slog.Debug("missed-events request failed", "error", err)
		return
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("missed-events fetch failed", "error", err)
		return
	}
	defer resp.Body.Close()

	// 404 means the publisher has nothing buffered for this match.
	if resp.StatusCode == http.StatusNotFound {
		return
	}
	if resp.StatusCode != http.StatusOK {
		slog.Debug("missed-events fetch failed", "status", resp.StatusCode)
		return
	}

	var frames []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		slog.Debug("missed-events decode failed", "error", err)
		return
	}
	if len(frames) == 0 {
		return
	}

	slog.Info("replaying missed events", "match_id", matchID, "count", len(frames))
	for _, frame := range frames {
		if err := c.admit(ctx, frame, "catch-up"); errors.Is(err, queue.ErrClosed) {
			return
		}
	}
}

// runConnection dials the push endpoint and reads frames until the connection
// drops. The first return value reports whether the dial succeeded.
func (c *Client) runConnection(ctx context.Context, matchID string) (bool, error) {
	wsURL := websocketURL(c.apiBase, matchID)

	hdr := http.Header{}
	if c.authToken != "" {
		hdr.Set("Authorization", "Bearer "+c.authToken)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: hdr,
	})
	cancel()
	if err != nil {
		return false, fmt.Errorf("stream: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}()

	c.status.Store(int32(StatusConnected))
	slog.Info("commentary stream connected", "match_id", matchID)

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go c.keepaliveLoop(readCtx, conn)

	for {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			if readCtx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("stream: read: %w", err)
		}
		if err := c.admit(readCtx, data, "push"); errors.Is(err, queue.ErrClosed) {
			return true, err
		}
	}
}

// admit decodes one frame and offers it to the queue. Malformed frames carry
// no id the checkpoint could trust, so they are logged and dropped.
func (c *Client) admit(ctx context.Context, data []byte, source string) error {
	ev, err := event.Decode(data)
	if err != nil {
		slog.Warn("dropping malformed event", "source", source, "error", err)
		return nil
	}

	switch err := c.queue.Admit(ev); {
	case err == nil:
		c.metrics.RecordAdmit(ctx, ev.Priority)
		slog.Debug("event admitted",
			"event_id", ev.ID,
			"priority", ev.Priority,
			"source", source,
		)
	case errors.Is(err, queue.ErrDuplicate):
		c.metrics.RecordDuplicate(ctx)
	case errors.Is(err, queue.ErrClosed):
		return err
	}
	return nil
}

// keepaliveLoop sends WebSocket pings so idle stretches between deliveries
// don't look like dead peers to middleboxes.
func (c *Client) keepaliveLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, keepaliveTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				// The peer is gone; close so the pending Read unblocks.
				_ = conn.Close(websocket.StatusGoingAway, "keepalive failed")
				return
			}
		}
	}
}

// websocketURL derives the push endpoint from the HTTP API base.
func websocketURL(apiBase, matchID string) string {
	base := strings.TrimSuffix(apiBase, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/live-commentary/" + matchID
}

// jitter spreads a backoff delay across ±20% so reconnecting clients don't
// stampede the publisher in lockstep.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}
