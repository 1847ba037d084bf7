package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streamcatch/streamcatch/internal/metrics"
)

const maxResponseBytes = 256 * 1024

// ErrNoSession is returned by SignUp when the account was created but the
// provider requires email confirmation before issuing tokens.
var ErrNoSession = errors.New("identity: no session issued")

// Error is a non-2xx answer from the auth provider.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth provider returned status %d", e.StatusCode)
	}
	return e.Message
}

// User is the provider's view of an account.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// DisplayName returns user_metadata.display_name when set.
func (u User) DisplayName() string {
	if u.UserMetadata == nil {
		return ""
	}
	name, _ := u.UserMetadata["display_name"].(string)
	return name
}

// Tokens is a token grant returned by the password and refresh flows.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expiry returns the absolute expiry of the access token.
func (t Tokens) Expiry(now time.Time) time.Time {
	if t.ExpiresAt > 0 {
		return time.Unix(t.ExpiresAt, 0)
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Client is a GoTrue-compatible REST client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *metrics.UpstreamMetrics
}

func New(baseURL, apiKey string, m *metrics.UpstreamMetrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		metrics: m,
	}
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges credentials for a token grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (t *Tokens, err error) {
	defer c.observe("sign_in", time.Now(), &err)

	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", passwordGrant{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh spends a refresh token for a new token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (t *Tokens, err error) {
	defer c.observe("refresh", time.Now(), &err)

	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", refreshGrant{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// signUpResponse covers both shapes: a token grant when the provider
// auto-confirms, or a bare user when confirmation is pending.
type signUpResponse struct {
	Tokens
	ID    string `json:"id"`
	Email string `json:"email"`

	UserMetadata map[string]any `json:"user_metadata"`
}

// SignUp creates an account. When no session is issued the returned user is
// populated and the error is ErrNoSession.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (t *Tokens, u *User, err error) {
	defer c.observe("sign_up", time.Now(), &err)

	var out signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", "", signUpRequest{Email: email, Password: password, Data: metadata}, &out); err != nil {
		return nil, nil, err
	}
	if out.AccessToken != "" {
		user := out.User
		return &out.Tokens, &user, nil
	}
	user := User{ID: out.ID, Email: out.Email, UserMetadata: out.UserMetadata}
	if user.ID == "" {
		user = out.User
	}
	return nil, &user, ErrNoSession
}

// SignOut revokes the refresh tokens behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) (err error) {
	defer c.observe("sign_out", time.Now(), &err)
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

type updateUserRequest struct {
	Data map[string]any `json:"data"`
}

// UpdateUser merges data into the user's metadata.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, data map[string]any) (u *User, err error) {
	defer c.observe("update_user", time.Now(), &err)

	var out User
	if err := c.do(ctx, http.MethodPut, "/user", accessToken, updateUserRequest{Data: data}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Error            string `json:"error"`
}

func errorMessage(raw []byte) string {
	var e errorBody
	if err := json.Unmarshal(raw, &e); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, m := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// Message extracts a user-facing message from err, falling back to fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	// A pending confirmation is a successful sign-up.
	e := *err
	if errors.Is(e, ErrNoSession) {
		e = nil
	}
	c.metrics.Observe("identity", operation, start, e)
}
