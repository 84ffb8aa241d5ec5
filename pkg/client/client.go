package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"research-flowstream/pkg/sse"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the research backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. hc should not set a Timeout, since job
// streams stay open for the whole run; bound calls with ctx instead.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// StartJobStream runs a job and calls onEvent after each event is applied to
// the returned tracker. Returning an error from onEvent stops reading. A
// stream that ends without a final event returns a nil error; check
// Tracker.Saved.
func (c *Client) StartJobStream(ctx context.Context, topic string, onEvent func(ev sse.Event, t *Tracker) error) (*Tracker, error) {
	resp, err := c.post(ctx, "/start-job-stream", startJobRequest{Topic: topic}, sse.ContentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	tracker := NewTracker()
	err = sse.NewDecoder(resp.Body).Decode(func(ev sse.Event) error {
		// Events the tracker cannot interpret are skipped like malformed frames.
		if err := tracker.Apply(ev); err != nil {
			return nil
		}
		if onEvent != nil {
			return onEvent(ev, tracker)
		}
		return nil
	})
	if err != nil {
		return tracker, fmt.Errorf("read job stream: %w", err)
	}
	return tracker, nil
}

func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/list-reports", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []Report
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return out, nil
}

func (c *Client) SearchReports(ctx context.Context, query string) ([]SearchHit, error) {
	resp, err := c.post(ctx, "/search-reports", searchRequest{Query: query}, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []SearchHit
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	return c.do(req)
}

// do returns the response only for 2xx; otherwise the body is turned into
// an APIError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
}
