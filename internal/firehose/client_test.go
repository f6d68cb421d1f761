package firehose

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHostFromURL(t *testing.T) {
	cases := map[string]string{
		"wss://bsky.network/xrpc/com.atproto.sync.subscribeRepos": "bsky.network",
		"ws://localhost:8080/xrpc/com.atproto.sync.subscribeRepos": "localhost:8080",
		"wss://relay.example.com": "relay.example.com",
	}
	for in, want := range cases {
		if got := hostFromURL(in); got != want {
			t.Errorf("hostFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientConsumeDispatchesDecodedMessages(t *testing.T) {
	identity := buildFramePayload(t, "#identity", mustMarshalMap(t, map[string]interface{}{"did": "did:plc:abc"}))
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.BinaryMessage, identity)
		// Keep the connection open briefly so the client has time to read
		// before the handler returns and closes it.
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	c := NewClient(host)
	c.inactivityTimeout = time.Second

	var mu sync.Mutex
	var received []FirehoseMessage
	c.SetEventCallback(func(msg FirehoseMessage) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// dial directly (ws://, not wss://) since Connect always dials wss://.
	sub, err := dial(ctx, "ws://"+host)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.consume(ctx, sub)
	sub.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Kind != KindIdentity {
		t.Fatalf("received = %+v, want one KindIdentity message", received)
	}
}
