package firehose

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/JWhist/atproto-firehose/internal/config"
	"github.com/JWhist/atproto-firehose/internal/metrics"
)

// EventCallback receives every successfully decoded message the stream
// produces. Per-frame decode errors are logged and never reach the
// callback; only the outer loop's bookkeeping observes them.
type EventCallback func(FirehoseMessage)

// Client owns a reconnecting Subscription against one relay host. The core
// Subscription owns no timer; Client is where the reference clients'
// "reconnect after 30s of inactivity, no backoff" policy actually lives.
type Client struct {
	host              string
	reconnectDelay    time.Duration
	inactivityTimeout time.Duration

	mu       sync.RWMutex
	callback EventCallback
}

// NewClient builds a Client dialing host (bare host[:port], no scheme or
// path) with the reference clients' defaults.
func NewClient(host string) *Client {
	return &Client{host: host, inactivityTimeout: 30 * time.Second, reconnectDelay: 5 * time.Second}
}

// NewClientWithConfig builds a Client from the application's FirehoseConfig.
func NewClientWithConfig(cfg *config.Config) *Client {
	return &Client{
		host:              hostFromURL(cfg.Firehose.URL),
		inactivityTimeout: cfg.Firehose.InactivityTimeout,
		reconnectDelay:    cfg.Firehose.ReconnectDelay,
	}
}

func hostFromURL(rawURL string) string {
	host := strings.TrimPrefix(rawURL, "wss://")
	host = strings.TrimPrefix(host, "ws://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	return host
}

// SetEventCallback installs the function invoked for every decoded message.
// It may be called while Start is running; the new callback is used from the
// next decoded message on.
func (c *Client) SetEventCallback(cb EventCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

// Start connects and reads frames until ctx is cancelled, reconnecting on
// transport errors and on inactivity timeout. It returns nil once ctx is
// done; a connect failure is logged and retried rather than returned, since
// relay hiccups are expected and the caller has already opted into a
// long-running subscription by calling Start.
func (c *Client) Start(ctx context.Context) error {
	for ctx.Err() == nil {
		sub, err := Connect(ctx, c.host)
		if err != nil {
			log.Printf("⚠️  firehose connect failed, retrying in %v: %v", c.reconnectDelay, err)
			if !sleepCtx(ctx, c.reconnectDelay) {
				return nil
			}
			continue
		}

		c.consume(ctx, sub)
		sub.Close()
	}
	return nil
}

func (c *Client) consume(ctx context.Context, sub *Subscription) {
	var lastBytes uint64
	for {
		readCtx, cancel := context.WithTimeout(ctx, c.inactivityTimeout)
		msg, err := sub.Next(readCtx)
		cancel()

		if n := sub.BytesRead(); n > lastBytes {
			metrics.BytesIn.Add(float64(n - lastBytes))
			lastBytes = n
		}

		if err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			metrics.FramesIn.WithLabelValues("error").Inc()
			log.Printf("⚠️  firehose frame decode error: %v", err)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		metrics.FramesIn.WithLabelValues(msg.Kind.String()).Inc()
		if msg.Kind == KindCommit && msg.Commit != nil {
			for _, op := range msg.Commit.Operations {
				metrics.CommitsIn.WithLabelValues(op.Kind.String(), op.Meta.Collection).Inc()
			}
		}

		c.dispatch(msg)

		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Client) dispatch(msg FirehoseMessage) {
	c.mu.RLock()
	cb := c.callback
	c.mu.RUnlock()
	if cb != nil {
		cb(msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
