package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "announcerd/pkg/logx"
)

// ErrorKind tags a gateway failure so callers can branch without relying on
// runtime type identity.
type ErrorKind int

const (
	// KindTransport covers connection failures, timeouts and server-side
	// internal errors. Recoverable by waiting for the next tick.
	KindTransport ErrorKind = iota
	// KindInvalidResponse covers undecodable bodies and schema violations.
	KindInvalidResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Error is the tagged error returned by all gateway operations.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("gateway: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind. Unknown errors report as transport so the
// caller's abort-this-tick policy stays safe.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransport
}

func transportErr(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func invalidErr(op string, err error) *Error {
	return &Error{Kind: KindInvalidResponse, Op: op, Err: err}
}

// client is the shared HTTP plumbing for the posts and accounts gateways.
type client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func newClient(base string, timeout time.Duration, log logx.Logger) client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return client{
		base: strings.TrimRight(strings.TrimSpace(base), "/"),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// doJSON issues the request and decodes the body into out.
//
// Taxonomy:
//   - network/timeout failure      -> transport
//   - HTTP 5xx                     -> transport ("internal server error")
//   - undecodable body             -> invalid_response
//
// Schema checks beyond JSON well-formedness (missing top-level keys) are the
// caller's job; decode targets use pointer fields so absence is detectable.
func (c client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return transportErr(op, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return transportErr(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return transportErr(op, fmt.Errorf("internal server error (status %d)", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return invalidErr(op, fmt.Errorf("could not decode response json: %w", err))
	}
	return nil
}
