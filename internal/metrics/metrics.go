// Package metrics exposes Prometheus counters for turns, messages and backend calls.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	TurnsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "code_buddy_turns_started_total",
			Help: "Total number of turns begun by the UI",
		},
	)
	TurnsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_buddy_turns_settled_total",
			Help: "Total number of turns settled, by how the response was correlated",
		},
		[]string{"correlation"}, // id, positional, send_failure
	)
	SendsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_buddy_sends_rejected_total",
			Help: "Total number of user sends rejected before reaching the transport",
		},
		[]string{"reason"},
	)
	SnippetsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "code_buddy_snippets_extracted_total",
			Help: "Total number of code snippets extracted from responses",
		},
	)
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_buddy_messages_received_total",
			Help: "Total number of protocol messages received",
		},
		[]string{"side", "type"},
	)
	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_buddy_messages_dropped_total",
			Help: "Total number of inbound messages dropped",
		},
		[]string{"side", "reason"},
	)
	BackendLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "code_buddy_backend_latency_seconds",
			Help:    "Latency of responder calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"responder"},
	)
	BackendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_buddy_backend_errors_total",
			Help: "Total number of responder failures reported to the user as response text",
		},
		[]string{"responder"},
	)
	PromptTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "code_buddy_prompt_tokens",
			Help:    "Estimated token count of prompts sent to the responder",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
	)
)

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
