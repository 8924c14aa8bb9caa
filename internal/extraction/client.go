/*
Package extraction is the client side of the analysis service.

The service receives one screenshot plus accumulated learned-rule text and
returns structured activity metadata. Failures are classified as retryable
or permanent so the indexing agent can decide whether to back off or give
up.
*/
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/version"
)

// Request is one extraction call.
type Request struct {
	Image     []byte
	MediaType string
	Timestamp time.Time
	Rules     string
}

// Client extracts activity metadata from a screenshot.
type Client interface {
	Extract(ctx context.Context, req Request) (*activity.Analysis, error)
}

// Summary is the service's digest of a day's activity.
type Summary struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	TopApps    []string `json:"top_apps"`
}

// HTTPClient talks to the analysis service over HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// NewHTTPClient creates a client for the service at baseURL.
// Per-call deadlines come from the caller's context.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

type analyzeRequest struct {
	ImageBase64  string `json:"image_base64"`
	MediaType    string `json:"media_type"`
	Timestamp    string `json:"timestamp"`
	LearnedRules string `json:"learned_rules,omitempty"`
}

// Extract posts the screenshot to /analyze and decodes the result.
func (c *HTTPClient) Extract(ctx context.Context, req Request) (*activity.Analysis, error) {
	if len(req.Image) == 0 {
		return nil, permanent(errors.New("empty image"))
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}

	body := analyzeRequest{
		ImageBase64:  base64.StdEncoding.EncodeToString(req.Image),
		MediaType:    mediaType,
		Timestamp:    req.Timestamp.Format(time.RFC3339),
		LearnedRules: req.Rules,
	}

	var analysis activity.Analysis
	if err := c.post(ctx, "/analyze", body, &analysis); err != nil {
		return nil, err
	}

	if strings.TrimSpace(analysis.Activity) == "" || strings.TrimSpace(analysis.Summary) == "" {
		return nil, permanent(errors.New("response missing activity or summary"))
	}

	return &analysis, nil
}

// Summarize asks the service to digest a list of entries.
func (c *HTTPClient) Summarize(ctx context.Context, entries []*activity.Entry) (*Summary, error) {
	body := map[string]interface{}{"activities": entries}

	var summary Summary
	if err := c.post(ctx, "/summarize", body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Health checks that the service is up.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return permanent(fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts, refused connections and resets are all worth retrying.
		return retryable(fmt.Errorf("request to %s failed: %w", path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return retryable(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s: %s", path, detail(data)),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// detail extracts a short error message from a response body.
func detail(data []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}
