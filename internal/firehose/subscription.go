package firehose

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/JWhist/atproto-firehose/internal/frame"
)

// ErrClosed is returned by Next once the subscription's websocket has been
// closed, whether by the caller, by a non-binary message from the peer, or
// by a read failure.
var ErrClosed = errors.New("firehose: subscription closed")

// Subscription owns one websocket connection to a relay's subscribeRepos
// endpoint for its entire lifetime and yields a lazy sequence of decoded
// frames. The core does not own a reconnect timer; callers that want the
// reference clients' 30-second inactivity policy apply it with context.
type Subscription struct {
	conn      *websocket.Conn
	closed    bool
	bytesRead atomic.Uint64
}

// Connect dials wss://<host>/xrpc/com.atproto.sync.subscribeRepos. host may
// include a query string (e.g. "bsky.network?cursor=123"); the core does
// not interpret cursor semantics, it only forwards whatever host names.
func Connect(ctx context.Context, host string) (*Subscription, error) {
	base, rawQuery, _ := splitQuery(host)
	u := url.URL{Scheme: "wss", Host: base, Path: "/xrpc/com.atproto.sync.subscribeRepos", RawQuery: rawQuery}
	return dial(ctx, u.String())
}

func splitQuery(host string) (base, query string, hasQuery bool) {
	for i := 0; i < len(host); i++ {
		if host[i] == '?' {
			return host[:i], host[i+1:], true
		}
	}
	return host, "", false
}

func dial(ctx context.Context, rawURL string) (*Subscription, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("firehose: connect: %w", err)
	}
	return &Subscription{conn: conn}, nil
}

// Next blocks for the next websocket message, splits and decodes its frame
// envelope, and maps it to a FirehoseMessage. A decode error from the frame
// or event layer is returned for that single call only; the subscription
// remains usable afterwards. Cancelling ctx (an outer timeout is the
// recommended use, since the relay sends no application keepalive)
// unblocks the read by closing the connection, which then surfaces as
// ErrClosed on this and every subsequent call.
func (s *Subscription) Next(ctx context.Context) (FirehoseMessage, error) {
	if s.closed {
		return FirehoseMessage{}, ErrClosed
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	msgType, payload, err := s.conn.ReadMessage()
	if err != nil {
		s.closed = true
		return FirehoseMessage{}, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if msgType != websocket.BinaryMessage {
		// Non-binary messages (ping/pong/text/close) are out-of-band at
		// this boundary; treat them as end of stream.
		s.closed = true
		s.conn.Close()
		return FirehoseMessage{}, ErrClosed
	}
	s.bytesRead.Add(uint64(len(payload)))

	f, err := frame.Decode(payload)
	if err != nil {
		return FirehoseMessage{}, err
	}
	return Decode(f)
}

// BytesRead reports the cumulative number of raw websocket payload bytes
// read so far. Safe to call concurrently with Next.
func (s *Subscription) BytesRead() uint64 {
	return s.bytesRead.Load()
}

// Close releases the underlying websocket. Safe to call more than once.
func (s *Subscription) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
