// Package api is the HTTP client for the product-assistant backend. The
// AuthClient covers the public /auth endpoints; the ChatClient covers the
// protected /chatbot endpoints and attaches the session token to each call.
package api

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

	"github.com/google/uuid"
	"github.com/zulandar/product-assistant/internal/errx"
	"github.com/zulandar/product-assistant/internal/logx"
	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a failed response is read for logging.
const maxErrorBody = 4 * 1024

// Options holds connection settings shared by both clients.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// requester issues requests against the backend and maps failures onto the
// errx taxonomy.
type requester struct {
	baseURL string
	client  *http.Client
}

func newRequester(opts Options, rt http.RoundTripper) *requester {
	if rt == nil {
		rt = opts.Transport
	}
	return &requester{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout, Transport: rt},
	}
}

func (r *requester) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	return r.do(ctx, method, path, body, "application/json", out)
}

func (r *requester) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if errx.IsAuth(err) {
			return fmt.Errorf("api: %s %s: %w", method, path, errx.ErrUnauthorized)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("api: %s %s: %w", method, path, ctxErr)
		}
		logx.Debug().Err(err).Str("request_id", reqID).Str("path", path).Msg("request failed")
		return errx.New(err, 0, "")
	}
	defer resp.Body.Close()

	logx.Debug().
		Str("request_id", reqID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend request")

	if err := errx.FromStatus(resp.StatusCode, readDetail(resp.Body)); err != nil {
		if errx.IsAuth(err) {
			return fmt.Errorf("api: %s %s: %w", method, path, err)
		}
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errx.New(err, resp.StatusCode, "api: decode "+path)
	}
	return nil
}

// readDetail extracts the error detail of a failed response, preferring the
// backend's {"detail": "..."} shape.
func readDetail(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(b, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		d, _ := json.Marshal(body.Detail)
		return string(d)
	}
	return strings.TrimSpace(string(b))
}

// AuthClient calls the public authentication endpoints.
type AuthClient struct {
	req  *requester
	opts Options
}

// NewAuthClient creates an AuthClient.
func NewAuthClient(opts Options) *AuthClient {
	return &AuthClient{req: newRequester(opts, nil), opts: opts}
}

// Register creates an account. It does not establish a session.
func (c *AuthClient) Register(ctx context.Context, email, password string) error {
	in := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}
	if err := c.req.doJSON(ctx, http.MethodPost, "/auth/register", in, nil); err != nil {
		return fmt.Errorf("api: register: %w", err)
	}
	return nil
}

// Login exchanges credentials for a token. The backend expects a
// form-encoded body with the email in the username field.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var out LoginResponse
	err := c.req.do(ctx, http.MethodPost, "/auth/login",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &out)
	if err != nil {
		return nil, fmt.Errorf("api: login: %w", err)
	}
	if out.Token == "" {
		return nil, errx.New(errors.New("empty token"), http.StatusOK, "api: login")
	}
	return &out, nil
}

// Me validates token against /auth/me and returns the user it belongs to.
func (c *AuthClient) Me(ctx context.Context, token string) (*User, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	r := newRequester(c.opts, &oauth2.Transport{Source: src, Base: c.opts.Transport})

	var u User
	if err := r.doJSON(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, fmt.Errorf("api: me: %w", err)
	}
	return &u, nil
}

// ChatClient calls the protected /chatbot endpoints. Every request carries
// the bearer token from the TokenSource; when the source has no token the
// request is never sent.
type ChatClient struct {
	req            *requester
	onUnauthorized func()
}

// NewChatClient creates a ChatClient. onUnauthorized, when non-nil, is called
// on every AuthError before it is returned.
func NewChatClient(opts Options, tokens oauth2.TokenSource, onUnauthorized func()) *ChatClient {
	rt := &oauth2.Transport{Source: tokens, Base: opts.Transport}
	return &ChatClient{req: newRequester(opts, rt), onUnauthorized: onUnauthorized}
}

func (c *ChatClient) check(err error) error {
	if err != nil && errx.IsAuth(err) && c.onUnauthorized != nil {
		c.onUnauthorized()
	}
	return err
}

// Send posts a user message. A nil ChatID starts a new conversation and the
// response carries the identifier the backend assigned.
func (c *ChatClient) Send(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.check(c.req.doJSON(ctx, http.MethodPost, "/chatbot/chat", in, &out)); err != nil {
		return nil, fmt.Errorf("api: send: %w", err)
	}
	return &out, nil
}

// Conversation returns the exchanges of a conversation in chronological order.
func (c *ChatClient) Conversation(ctx context.Context, chatID string) ([]Exchange, error) {
	var out []Exchange
	path := "/chatbot/chat/" + url.PathEscape(chatID)
	if err := c.check(c.req.doJSON(ctx, http.MethodGet, path, nil, &out)); err != nil {
		return nil, fmt.Errorf("api: conversation %s: %w", chatID, err)
	}
	return out, nil
}

// History returns one summary per conversation, newest first.
func (c *ChatClient) History(ctx context.Context) ([]Summary, error) {
	var out []Summary
	if err := c.check(c.req.doJSON(ctx, http.MethodGet, "/chatbot/history", nil, &out)); err != nil {
		return nil, fmt.Errorf("api: history: %w", err)
	}
	return out, nil
}
