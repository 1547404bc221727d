package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreRegistered(t *testing.T) {
	TurnsStarted.Inc()
	TurnsSettled.WithLabelValues("id").Inc()
	MessagesReceived.WithLabelValues("ui", "aiResponse").Inc()
	PromptTokens.Observe(128)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), "code_buddy_turns_started_total")
	require.Contains(t, string(body), `code_buddy_turns_settled_total{correlation="id"}`)
	require.Contains(t, string(body), `code_buddy_messages_received_total{side="ui",type="aiResponse"}`)
	require.Contains(t, string(body), "code_buddy_prompt_tokens_bucket")
}

func TestServe_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0") }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
