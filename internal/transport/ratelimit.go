package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// RateLimitedTransport is an http.RoundTripper for model APIs that waits out 429 responses carrying a retry-after
// header, up to MaxWait per attempt and MaxAttempts in total
type RateLimitedTransport struct {
	base        http.RoundTripper
	MaxWait     time.Duration
	MaxAttempts int
}

// WithRateLimiting wraps base, or http.DefaultTransport if base is nil
func WithRateLimiting(base http.RoundTripper) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RateLimitedTransport{base: base, MaxWait: time.Minute, MaxAttempts: 5}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Preserve the original request body for retries
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		err = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to close request body: %w", err)
		}
	}

	for attempt := 1; ; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= t.MaxAttempts {
			return resp, nil
		}

		waitDuration := parseRetryAfter(resp.Header.Get("retry-after"))
		if waitDuration <= 0 || waitDuration > t.MaxWait {
			// Let the caller see the 429; the responder reports it to the user
			return resp, nil
		}

		err = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to close response body: %w", err)
		}

		log.Warn().Dur("wait", waitDuration).Int("attempt", attempt).Str("host", req.URL.Host).Msg("Rate limited")
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(waitDuration):
		}
	}
}

// parseRetryAfter accepts both forms of the header: delay in seconds, or an HTTP date
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := time.Parse(time.RFC1123, value); err == nil {
		return time.Until(retryTime)
	}
	return 0
}
