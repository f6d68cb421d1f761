package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebsocketConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections",
		Help: "Current number of active WebSocket connections",
	})
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Total number of messages sent to clients",
	}, []string{"keyword"})
	// Gauge to track current keyword activity - shows "right now" activity
	KeywordActivity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "keyword_messages_current",
		Help: "Current count of messages containing each keyword (resets periodically)",
	}, []string{"keyword"})
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_received_total",
		Help: "Total number of messages received from the firehose",
	})
	FiltersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filters_created_total",
		Help: "Total number of filters created",
	})
	FiltersDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filters_deleted_total",
		Help: "Total number of filters deleted",
	})

	// FramesIn counts every frame the subscription yields, by decoded kind
	// (commit/handle/tombstone/identity/account, or "error" for a per-frame
	// decode failure). This is the process-surface counter named by the
	// exporter binary's contract.
	FramesIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bluesky_firehose_streamer_frames_in",
		Help: "Total number of firehose frames received, by kind",
	}, []string{"kind"})

	// CommitsIn counts every operation extracted from a commit, by
	// (operation, collection).
	CommitsIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bluesky_firehose_streamer_commits_in",
		Help: "Total number of commit operations processed, by operation and collection",
	}, []string{"operation", "collection"})

	// BytesIn counts raw websocket payload bytes read off the wire.
	BytesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluesky_firehose_streamer_bytes_in",
		Help: "Total number of bytes read from the firehose websocket",
	})
)

func init() {
	prometheus.MustRegister(
		WebsocketConnections,
		MessagesSent,
		KeywordActivity,
		MessagesReceived,
		FiltersCreated,
		FiltersDeleted,
		FramesIn,
		CommitsIn,
		BytesIn,
	)
}
