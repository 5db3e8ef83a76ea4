package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

// Source answers a freshness-bounded read of the relay.
type Source interface {
	Latest(ctx context.Context, maxAge time.Duration) (*model.LatestView, error)
}

// Client reads GET /context/latest. A circuit breaker keeps a dead relay from being hammered
// on every tick; while open, calls fail fast with gobreaker.ErrOpenState.
type Client struct {
	base   string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relay-latest",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("POLL_BREAKER_STATE", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) Latest(ctx context.Context, maxAge time.Duration) (*model.LatestView, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx, maxAge)
	})
	if err != nil {
		return nil, &model.TransportError{Op: "latest", Err: err}
	}
	return res.(*model.LatestView), nil
}

func (c *Client) fetch(ctx context.Context, maxAge time.Duration) (*model.LatestView, error) {
	q := url.Values{}
	if maxAge > 0 {
		q.Set("maxAgeSeconds", strconv.FormatFloat(maxAge.Seconds(), 'f', -1, 64))
	}
	target := c.base + "/context/latest"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var view model.LatestView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &view, nil
}
