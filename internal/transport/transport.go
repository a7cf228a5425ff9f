// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// RequestIDHeader carries a per-request UUID for log correlation.
const RequestIDHeader = "X-Request-ID"

// sharedHTTPClient pools connections across every Transport that does not
// supply its own client. No Timeout is set: the wall-clock limit is enforced
// per request by Do.
// SECURITY: TLS not forced - local Ollama runs over plain HTTP on 127.0.0.1
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// REQUEST / RESPONSE
// =============================================================================

// Request describes one outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the raw result of Do. The transport does not interpret the
// status code. Close must be called on every path.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser

	RequestID string

	hasBody   bool
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusText returns the reason phrase, e.g. "Internal Server Error".
func (r *Response) StatusText() string {
	text := strings.TrimSpace(strings.TrimPrefix(r.Status, strconv.Itoa(r.StatusCode)))
	if text == "" {
		return http.StatusText(r.StatusCode)
	}
	return text
}

// HasBody reports whether the response can carry a body. It is false only for
// HEAD requests and for statuses that never have one (101, 204, 205, 304); a
// zero-length 200 still has an empty body.
func (r *Response) HasBody() bool {
	return r.hasBody
}

// Text reads the whole body as a string.
func (r *Response) Text() (string, error) {
	data, err := io.ReadAll(r.Body)
	return string(data), err
}

// Close releases the body and the request context. Safe to call twice.
func (r *Response) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.Body != nil {
			err = r.Body.Close()
		}
		if r.cancel != nil {
			r.cancel()
		}
	})
	return err
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport issues HTTP requests with a timeout-bounded cancellation.
// It is safe for concurrent use once configured.
type Transport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// New creates a Transport backed by the shared pooled HTTP client.
func New() *Transport {
	return &Transport{
		httpClient: sharedHTTPClient,
		log:        zerolog.Nop(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (t *Transport) WithHTTPClient(c *http.Client) *Transport {
	if c != nil {
		t.httpClient = c
	}
	return t
}

// WithLogger sets the logger used for request lifecycle events.
func (t *Transport) WithLogger(log zerolog.Logger) *Transport {
	t.log = log.With().Str("component", "transport").Logger()
	return t
}

// WithRateLimit caps outbound requests per second. rps <= 0 disables the limit.
// Time spent waiting for a token counts against the request timeout.
func (t *Transport) WithRateLimit(rps float64, burst int) *Transport {
	if rps <= 0 {
		t.limiter = nil
		return t
	}
	if burst < 1 {
		burst = 1
	}
	t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return t
}

// Do issues req and enforces timeout until the response headers arrive.
//
// If the timer fires first the in-flight request is aborted and a
// *TimeoutError is returned. Any other failure returns a *NetworkError.
// The timer is always stopped before Do returns.
func (t *Transport) Do(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	requestID := uuid.NewString()
	start := time.Now()

	fail := func(err error) (*Response, error) {
		timer.Stop()
		cancel()
		classified := t.classify(ctx, req, timeout, &timedOut, err)
		t.log.Debug().
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("url", req.URL).
			Dur("elapsed", time.Since(start)).
			Err(classified).
			Msg("request failed")
		return nil, classified
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(reqCtx); err != nil {
			return fail(err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, body)
	if err != nil {
		return fail(err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set(RequestIDHeader, requestID)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fail(err)
	}

	// Headers are in; the timeout window is over.
	if !timer.Stop() && timedOut.Load() {
		resp.Body.Close()
		return fail(context.Canceled)
	}

	t.log.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("response headers received")

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body: &bodyReader{
			rc:       resp.Body,
			req:      req,
			parent:   ctx,
			timeout:  timeout,
			timedOut: &timedOut,
			owner:    t,
		},
		RequestID: requestID,
		hasBody:   req.Method != http.MethodHead && !nullBodyStatus(resp.StatusCode),
		cancel:    cancel,
	}, nil
}

func nullBodyStatus(code int) bool {
	switch code {
	case http.StatusSwitchingProtocols, http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}

// classify turns a low-level failure into a TimeoutError or NetworkError.
func (t *Transport) classify(parent context.Context, req Request, timeout time.Duration, timedOut *atomic.Bool, err error) error {
	if timedOut.Load() || errors.Is(err, context.DeadlineExceeded) || errors.Is(parent.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Method: req.Method, URL: req.URL, Elapsed: timeout}
	}
	return &NetworkError{Method: req.Method, URL: req.URL, Cause: err}
}

// bodyReader maps read failures onto the transport error kinds so a connection
// dropped mid-stream is reported the same way as one that never opened.
type bodyReader struct {
	rc       io.ReadCloser
	req      Request
	parent   context.Context
	timeout  time.Duration
	timedOut *atomic.Bool
	owner    *Transport
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && err != io.EOF {
		err = b.owner.classify(b.parent, b.req, b.timeout, b.timedOut, err)
	}
	return n, err
}

func (b *bodyReader) Close() error {
	return b.rc.Close()
}
