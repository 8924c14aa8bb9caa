package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/capture"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/khanglvm/monitome/internal/pipeline"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/khanglvm/monitome/internal/storage"
)

// ErrUnavailable is returned when the daemon cannot be reached.
var ErrUnavailable = errors.New("monitome daemon is not running")

// APIError is a non-2xx response from the control API. errors.Is maps
// its code back to the matching sentinel error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is reports whether the response carries the error kind of target.
func (e *APIError) Is(target error) bool {
	switch target {
	case storage.ErrNotFound:
		return e.Code == CodeNotFound
	case pipeline.ErrNoActivity:
		return e.Code == CodeNoActivity
	case pipeline.ErrRecordingDisabled:
		return e.Code == CodeRecordingDisabled
	case capture.ErrPermissionDenied:
		return e.Code == CodePermissionDenied
	case capture.ErrCaptureFailed:
		return e.Code == CodeCaptureFailed
	}
	return false
}

// Client calls a running daemon's control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API listening on addr (host:port
// or a full URL).
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		// Summaries wait on the analysis service.
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Health checks that the daemon is up and returns its version.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Status returns the daemon's status snapshot.
func (c *Client) Status(ctx context.Context) (*pipeline.Status, error) {
	var st pipeline.Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CaptureNow takes a manual screenshot.
func (c *Client) CaptureNow(ctx context.Context) (*storage.Screenshot, error) {
	var shot storage.Screenshot
	if err := c.do(ctx, http.MethodPost, "/capture", nil, &shot); err != nil {
		return nil, err
	}
	return &shot, nil
}

// SetRecording turns recording on or off.
func (c *Client) SetRecording(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPost, "/recording", RecordingBody{Enabled: enabled}, nil)
}

// ToggleRecording flips recording and returns the new value.
func (c *Client) ToggleRecording(ctx context.Context) (bool, error) {
	var out RecordingBody
	if err := c.do(ctx, http.MethodPost, "/recording/toggle", nil, &out); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

// SetEventTriggers enables or disables activity-event captures.
func (c *Client) SetEventTriggers(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPost, "/event-triggers", RecordingBody{Enabled: enabled}, nil)
}

// ReportActivity forwards an externally detected activity event.
func (c *Client) ReportActivity(ctx context.Context, reason string) (bool, error) {
	var out EventResult
	if err := c.do(ctx, http.MethodPost, "/events", EventBody{Reason: reason}, &out); err != nil {
		return false, err
	}
	return out.Accepted, nil
}

// Search queries the activity index.
func (c *Client) Search(ctx context.Context, q search.Query) (*search.Results, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	for _, tag := range q.Tags {
		v.Add("tag", tag)
	}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if q.App != "" {
		v.Set("app", q.App)
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}

	path := "/search"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var res search.Results
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Entry returns the indexed entry for a screenshot.
func (c *Client) Entry(ctx context.Context, id string) (*activity.Entry, error) {
	var e activity.Entry
	if err := c.do(ctx, http.MethodGet, "/entries/"+url.PathEscape(id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Reindex queues a screenshot for re-extraction.
func (c *Client) Reindex(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/entries/"+url.PathEscape(id)+"/reindex", nil, nil)
}

// Failures lists recent terminal indexing failures.
func (c *Client) Failures(ctx context.Context, limit int) ([]storage.Failure, error) {
	var out []storage.Failure
	if err := c.do(ctx, http.MethodGet, "/failures?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rules lists learned extraction rules.
func (c *Client) Rules(ctx context.Context) ([]storage.LearnedRule, error) {
	var out []storage.LearnedRule
	if err := c.do(ctx, http.MethodGet, "/rules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Learn appends an extraction rule.
func (c *Client) Learn(ctx context.Context, text string) (*storage.LearnedRule, error) {
	var rule storage.LearnedRule
	if err := c.do(ctx, http.MethodPost, "/rules", RuleBody{Text: text}, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Summary returns the analysis service's digest of one day.
func (c *Client) Summary(ctx context.Context, date string) (*extraction.Summary, error) {
	path := "/summary"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var sum extraction.Summary
	if err := c.do(ctx, http.MethodGet, path, nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w at %s: %v", ErrUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var eb ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
