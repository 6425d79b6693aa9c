package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-ledger-auth/ledger"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// DefaultTimeout bounds each request made with the default HTTP client.
const DefaultTimeout = 30 * time.Second

// Transport sends JSON requests, optionally throttled. It is shared with the
// prover adapter.
type Transport struct {
	HTTP    *http.Client
	limiter *rate.Limiter
}

// NewTransport returns a transport using client, or a client with
// DefaultTimeout when nil.
func NewTransport(client *http.Client) *Transport {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Transport{HTTP: client}
}

// SetTimeout bounds every request. A non-positive d removes the bound.
func (t *Transport) SetTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	hc := *t.HTTP
	hc.Timeout = d
	t.HTTP = &hc
}

// SetRateLimit throttles outgoing requests to rps with the given burst.
// A non-positive rps removes the limit.
func (t *Transport) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		t.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (t *Transport) Do(ctx context.Context, method, url string, in, out any) error {
	meta := map[string]any{"method": method, "url": url}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return ledger.NetworkError(err, "request throttled", meta)
		}
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return ledger.NetworkError(err, "failed to encode request", meta)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return ledger.NetworkError(err, "failed to build request", meta)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return ledger.NetworkError(err, "request failed", meta)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		meta["status"] = resp.StatusCode
		meta["body"] = strings.TrimSpace(string(snippet))
		return ledger.NetworkError(nil, fmt.Sprintf("%s %s failed: %s", method, url, resp.Status), meta)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ledger.NetworkError(err, "failed to decode response", meta)
	}
	return nil
}
