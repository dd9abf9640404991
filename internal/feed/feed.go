// Package feed listens to the asset generator's push socket and turns
// "asset generated" notifications into reconcile triggers.
//
// The feed is a hint, never a source of truth: a missed or duplicated
// message only changes when the engine re-reads the manifest, not what
// it concludes.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/roach88/placesync/internal/clock"
	"github.com/roach88/placesync/internal/projection"
)

// MessageTypeAssetGenerated is the only message type that triggers a pass.
const MessageTypeAssetGenerated = "asset_generated"

// Message is one push-socket frame.
type Message struct {
	Type      string `json:"type"`
	AssetID   string `json:"asset_id"`
	Version   int    `json:"version"`
	Placement *int   `json:"placement,omitempty"`
}

// DedupeKey identifies the asset version announced by m.
func (m Message) DedupeKey() string {
	return fmt.Sprintf("asset:%s:%d", m.AssetID, m.Version)
}

// Trigger is the engine surface the feed drives.
type Trigger interface {
	TriggerReconcile(source projection.Source, dedupeKey string)
}

// Retry is the reconnect schedule.
type Retry struct {
	// Fast is the delay for the first SlowAfter consecutive failures.
	Fast time.Duration
	// Slow is the delay once failures keep repeating.
	Slow time.Duration
	// SlowAfter is the number of consecutive failures before Slow applies.
	SlowAfter int
}

// DefaultRetry reconnects after 1s, backing off to 5s after three
// consecutive failures.
func DefaultRetry() Retry {
	return Retry{Fast: time.Second, Slow: 5 * time.Second, SlowAfter: 3}
}

// Delay returns the wait before the next attempt after failures
// consecutive failures.
func (r Retry) Delay(failures int) time.Duration {
	if failures > r.SlowAfter {
		return r.Slow
	}
	return r.Fast
}

// Client maintains one push-socket subscription.
type Client struct {
	url     string
	origin  string
	trigger Trigger
	logger  *slog.Logger
	clock   clock.Clock
	retry   Retry

	mu       sync.Mutex
	received int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithClock sets the clock used for reconnect delays.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// WithRetry overrides the reconnect schedule.
func WithRetry(r Retry) Option {
	return func(c *Client) {
		c.retry = r
	}
}

// WithOrigin sets the Origin header sent on the handshake.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		c.origin = origin
	}
}

// New creates a client for the ws:// or wss:// url.
func New(url string, trigger Trigger, opts ...Option) *Client {
	c := &Client{
		url:     url,
		origin:  "http://localhost/",
		trigger: trigger,
		logger:  slog.Default(),
		clock:   clock.System(),
		retry:   DefaultRetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Received returns the number of asset messages delivered so far.
func (c *Client) Received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// Run connects and reconnects until ctx is done. It returns an error only
// when the url itself is unusable.
func (c *Client) Run(ctx context.Context) error {
	cfg, err := websocket.NewConfig(c.url, c.origin)
	if err != nil {
		return fmt.Errorf("feed config: %w", err)
	}

	failures := 0
	for {
		delivered, err := c.session(ctx, cfg)
		if ctx.Err() != nil {
			return nil
		}
		if delivered > 0 {
			failures = 0
		}
		failures++
		delay := c.retry.Delay(failures)
		c.logger.Warn("feed_disconnected", "url", c.url, "error", err, "failures", failures, "retry_in", delay)

		if !c.sleep(ctx, delay) {
			return nil
		}
	}
}

// session runs one connection until it fails. It returns the number of
// asset messages delivered over it.
func (c *Client) session(ctx context.Context, cfg *websocket.Config) (int, error) {
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	c.logger.Info("feed_connected", "url", c.url)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
			_ = conn.Close()
		}
	}()

	delivered := 0
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if errors.Is(err, io.EOF) {
				return delivered, errors.New("connection closed by server")
			}
			return delivered, fmt.Errorf("receive: %w", err)
		}
		if c.handle(data) {
			delivered++
		}
	}
}

// handle decodes one frame and triggers a pass for asset messages.
func (c *Client) handle(data []byte) bool {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("feed_message_invalid", "error", err)
		return false
	}
	if msg.Type != MessageTypeAssetGenerated {
		c.logger.Debug("feed_message_ignored", "type", msg.Type)
		return false
	}
	if msg.AssetID == "" {
		c.logger.Warn("feed_message_invalid", "error", "missing asset_id")
		return false
	}

	c.mu.Lock()
	c.received++
	c.mu.Unlock()

	c.logger.Debug("feed_asset_generated", "asset", msg.AssetID, "version", msg.Version)
	c.trigger.TriggerReconcile(projection.SourceWSAsset, msg.DedupeKey())
	return true
}

// sleep waits for d on the client clock. It returns false if ctx ended first.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	fired := make(chan struct{})
	t := c.clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-ctx.Done():
		t.Stop()
		return false
	}
}
