// Command firehose-exporter runs a standalone Prometheus exporter for the
// Bluesky relay firehose: it connects, decodes every frame, and exposes
// frame/commit counters on /metrics. It has no filter or subscription API of
// its own; it exists to answer "is the firehose healthy" from a dashboard.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JWhist/atproto-firehose/internal/firehose"
)

func main() {
	host := flag.String("host", "bsky.network", "relay host to subscribe to")
	addr := flag.String("addr", "0.0.0.0:8956", "address to serve /metrics and /health on")
	flag.Parse()

	log.Printf("connecting to the bluesky firehose at %s", *host)

	client := firehose.NewClient(*host)
	client.SetEventCallback(func(msg firehose.FirehoseMessage) {
		// Counting happens inside Client.consume whether or not a callback
		// is set; this callback does nothing with the decoded message.
		_ = msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := client.Start(ctx); err != nil {
			log.Printf("firehose client stopped: %v", err)
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Go to /metrics or /health"))
	})
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("starting HTTP server at %s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("exporter HTTP server error: %v", err)
			cancel()
		}
	}()

	<-sigChan
	log.Println("received shutdown signal...")
	cancel()
	server.Close()
}
