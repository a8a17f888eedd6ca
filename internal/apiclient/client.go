// Package apiclient is the one place citadel talks HTTP to the marketplace backend.
//
// Every call is a single request: nothing is retried or cached here, and a
// failure comes back as a normalized [Result] rather than a bare error so
// callers can decide how much of it the user gets to see.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
)

// Bodies larger than this are treated as malformed.
const maxBodyBytes = 8 << 20

type (
	// Request describes one backend call.
	Request struct {
		Method string
		URL    string
		Header http.Header

		// Token, when set, is sent as a bearer credential.
		Token string

		// JSON is encoded as the request body when set. Otherwise Body is sent
		// as-is with ContentType.
		JSON        any
		Body        io.Reader
		ContentType string
	}

	// Result is the normalized outcome of a call: either OK with the raw
	// response body, or not OK with Err populated.
	Result struct {
		OK     bool
		Status int // 0 when the request never got a response
		Data   json.RawMessage
		Err    *cmerrs.Error

		// Cause is the underlying transport or decoding failure, for logs only.
		Cause error
	}

	// Doer is what the typed clients depend on; [Client] satisfies it.
	Doer interface {
		Do(ctx context.Context, req Request) Result
	}

	Client struct {
		httpClient *http.Client
	}
)

var _ Doer = (*Client)(nil)

// New creates a client whose transport is traced with otelhttp.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// NewWithHTTPClient uses the given client untouched. Mostly for tests.
func NewWithHTTPClient(c *http.Client) *Client {
	return &Client{httpClient: c}
}

// Do performs exactly one request.
func (c *Client) Do(ctx context.Context, req Request) Result {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return failed(0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return failed(0, fmt.Errorf("error creating request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failed(0, fmt.Errorf("error making request: %w", err))
	}
	defer resp.Body.Close()

	byts, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return failed(resp.StatusCode, fmt.Errorf("error reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Status: resp.StatusCode,
			Data:   byts,
			Err:    serverError(resp.StatusCode, byts),
			Cause:  fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	return Result{
		OK:     true,
		Status: resp.StatusCode,
		Data:   byts,
	}
}

// Decode unmarshals the body of a successful result into v.
func (r Result) Decode(v any) error {
	if !r.OK {
		return r.Err
	}
	if len(bytes.TrimSpace(r.Data)) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}

	return nil
}

// Failure returns the normalized error, or nil if the call succeeded. Handy when
// the caller only cares about the outcome.
func (r Result) Failure() error {
	if r.OK {
		return nil
	}

	return r.Err
}

func encodeBody(req Request) (io.Reader, string, error) {
	if req.JSON != nil {
		byts, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("error encoding request: %w", err)
		}

		return bytes.NewReader(byts), "application/json", nil
	}

	return req.Body, req.ContentType, nil
}

// Prefers whatever message the backend put in the body.
func serverError(status int, body []byte) *cmerrs.Error {
	e := cmerrs.E(status, cmerrs.GenericMessage)
	if len(bytes.TrimSpace(body)) == 0 {
		return e
	}

	parsed := &cmerrs.Error{Status: status}
	if err := json.Unmarshal(body, parsed); err != nil {
		return e
	}

	return parsed
}

func failed(status int, cause error) Result {
	errStatus := status
	if errStatus == 0 {
		errStatus = http.StatusBadGateway
	}

	return Result{
		Status: status,
		Err:    cmerrs.E(errStatus, cmerrs.GenericMessage),
		Cause:  cause,
	}
}
