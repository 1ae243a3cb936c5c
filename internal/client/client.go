// Package client talks to a running triaged server over HTTP. The server can
// use it as the alert sink when the queue lives in another process, and
// triagectl uses it for every operator command.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/triaged/internal/alert"
	"github.com/linnemanlabs/triaged/internal/triage"
)

const (
	// DefaultTimeout bounds one round trip. /triage waits on the model, so
	// this sits above the server's default backend timeout.
	DefaultTimeout = 90 * time.Second

	// PatientIDHeader mirrors alertapi.PatientIDHeader.
	PatientIDHeader = "X-Patient-Id"

	maxErrBody = 512
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Msg)
}

// Client is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q: missing host", baseURL)
	}

	c := &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string { return c.base }

// Reply is the server's answer to one interview round. Exactly one of
// NextQuestion and Verdict is set.
type Reply struct {
	PatientID    string
	NextQuestion string
	Verdict      *triage.Verdict
}

// Done reports whether the interview has ended.
func (r *Reply) Done() bool { return r.Verdict != nil }

type triageBody struct {
	PatientID string          `json:"patient_id,omitempty"`
	EHR       json.RawMessage `json:"ehr,omitempty"`
	Answer    string          `json:"answer"`
}

// Triage sends one interview round. An empty patientID lets the server
// assign one; it is returned in the reply.
func (c *Client) Triage(ctx context.Context, patientID string, ehr json.RawMessage, answer string) (*Reply, error) {
	var raw struct {
		NextQuestion   *string         `json:"next_question"`
		EmergencyIndex *int            `json:"emergency_index"`
		PriorityLabel  triage.Priority `json:"priority_label"`
		Rationale      string          `json:"rationale"`
	}
	hdr, err := c.do(ctx, http.MethodPost, "/triage", triageBody{
		PatientID: patientID,
		EHR:       ehr,
		Answer:    answer,
	}, &raw)
	if err != nil {
		return nil, err
	}

	reply := &Reply{PatientID: hdr.Get(PatientIDHeader)}
	if reply.PatientID == "" {
		reply.PatientID = patientID
	}
	switch {
	case raw.EmergencyIndex != nil:
		reply.Verdict = &triage.Verdict{
			EmergencyIndex: *raw.EmergencyIndex,
			PriorityLabel:  raw.PriorityLabel,
			Rationale:      raw.Rationale,
		}
	case raw.NextQuestion != nil:
		reply.NextQuestion = *raw.NextQuestion
	default:
		return nil, fmt.Errorf("triage: response has neither next_question nor emergency_index")
	}
	return reply, nil
}

// Submit queues an entry on the server. It satisfies triage.AlertSink.
func (c *Client) Submit(ctx context.Context, e *alert.Entry) error {
	body := map[string]any{
		"patient_id": e.PatientID,
		"name":       e.Name,
		"score":      e.Score,
		"priority":   e.Priority,
		"rationale":  e.Rationale,
	}
	_, err := c.do(ctx, http.MethodPost, "/alert", body, nil)
	return err
}

// Alerts returns the queue in score-descending order.
func (c *Client) Alerts(ctx context.Context) ([]alert.Entry, error) {
	var out []alert.Entry
	if _, err := c.do(ctx, http.MethodGet, "/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear empties the queue.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/clear", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (http.Header, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s %s: marshal: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req) //nolint:gosec // base URL is operator config
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, fmt.Errorf("%s %s: %w", method, path, &StatusError{Code: resp.StatusCode, Msg: errorMessage(raw)})
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return resp.Header, nil
}

// errorMessage pulls msg or error out of a JSON error body, falling back to
// the raw text.
func errorMessage(raw []byte) string {
	var env struct {
		Msg   string `json:"msg"`
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil {
		if env.Msg != "" {
			return env.Msg
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
