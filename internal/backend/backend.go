package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/streamcatch/streamcatch/internal/metrics"
)

const maxErrorBodyBytes = 1024

var (
	// ErrConflict is returned when the user already follows the channel.
	ErrConflict = errors.New("already following")
	// ErrBadRequest is returned for invalid URLs or unsupported platforms.
	ErrBadRequest = errors.New("bad request")
	// ErrPermissionDenied is returned for 401/403 answers.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnexpectedStatus covers every other non-2xx answer.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// APIError carries the status and body of a failed backend call.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// NewAPIError classifies a failed answer by its status code.
func NewAPIError(status int, message string) *APIError {
	e := &APIError{StatusCode: status, Message: message, kind: ErrUnexpectedStatus}
	switch status {
	case http.StatusConflict:
		e.kind = ErrConflict
	case http.StatusBadRequest:
		e.kind = ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		e.kind = ErrPermissionDenied
	}
	return e
}

// Client talks to the recording backend: follow management, live account
// resolution and playback URL issuance.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.UpstreamMetrics
}

func New(baseURL string, m *metrics.UpstreamMetrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		metrics: m,
	}
}

// EncodeURL encodes a channel URL for the live-following path segment:
// standard base64 with '+'→'-', '/'→'_' and the '=' padding stripped.
func EncodeURL(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeURL reverses EncodeURL.
func DecodeURL(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", fmt.Errorf("decode channel url: %w", err)
	}
	return string(b), nil
}

// Follow asks the backend to resolve channelURL and create the follow in one step.
func (c *Client) Follow(ctx context.Context, accessToken, channelURL string) (err error) {
	defer c.observe("follow", time.Now(), &err)

	endpoint := c.baseURL + "/live-following/" + EncodeURL(channelURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create follow request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send follow request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return NewAPIError(resp.StatusCode, readErrorBody(resp.Body))
}

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	LiveAccountID int64  `json:"live_account_id"`
	Message       string `json:"message"`
}

// ResolveLiveAccount maps a channel URL to its live account id, creating the
// account on the backend when it is not tracked yet.
func (c *Client) ResolveLiveAccount(ctx context.Context, accessToken, channelURL string) (id int64, err error) {
	defer c.observe("resolve", time.Now(), &err)

	body, err := json.Marshal(resolveRequest{URL: channelURL})
	if err != nil {
		return 0, fmt.Errorf("marshal resolve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/live-account/resolve", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create resolve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send resolve request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out resolveResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, NewAPIError(resp.StatusCode, out.Message)
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("decode resolve response: %w", decodeErr)
	}
	if out.LiveAccountID == 0 {
		return 0, fmt.Errorf("resolve response missing live_account_id")
	}
	return out.LiveAccountID, nil
}

type watchURLResponse struct {
	URL string `json:"url"`
}

// WatchURL exchanges a recording id for a time-limited playable media URL.
func (c *Client) WatchURL(ctx context.Context, accessToken string, recordingID int64) (u string, err error) {
	defer c.observe("watch_url", time.Now(), &err)

	endpoint := c.baseURL + "/api/watch-url?" + url.Values{"recording_id": {strconv.FormatInt(recordingID, 10)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create watch url request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send watch url request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", NewAPIError(resp.StatusCode, readErrorBody(resp.Body))
	}

	var out watchURLResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode watch url response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("watch url response missing url")
	}
	return out.URL, nil
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	c.metrics.Observe("backend", operation, start, *err)
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	return strings.TrimSpace(string(b))
}
