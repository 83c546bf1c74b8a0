package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	errNoRefreshToken       = errors.New("no refresh token stored")
	errNoStaticToken        = errors.New("no chat id and no static token configured")
	errStaticTokenRejected  = errors.New("static token rejected")
	errRejectedAfterRecover = errors.New("token rejected after refresh")
)

// TokenStore is the part of the credential store the gateway needs.
type TokenStore interface {
	GetAccessToken(ctx context.Context, telegramID int64) (string, error)
	GetRefreshToken(ctx context.Context, telegramID int64) (string, error)
	GetProfile(ctx context.Context, telegramID int64) (*domain.Profile, error)
	SaveAll(ctx context.Context, c *domain.Credentials) error
	UpdateAccessToken(ctx context.Context, telegramID int64, token string) error
	UpdateTokens(ctx context.Context, telegramID int64, access, refresh string) error
}

// User identifies the chat a call is made for. Profile carries optional
// hints used when the gateway has to register the user silently.
type User struct {
	TelegramID int64
	Profile    domain.Profile
}

// Request is one authenticated backend call.
type Request struct {
	User   User
	Method string
	Path   string
	Body   any
}

// Client is the token-mediated gateway to the habit backend. It shares one
// pooled http.Client across users and sets the bearer header per request.
type Client struct {
	baseURL     string
	botToken    string
	staticToken string
	store       TokenStore
	http        *http.Client
	timeout     time.Duration
	clock       clockwork.Clock
	log         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout bounds every single backend request.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithClock sets the clock used for login auth_date.
func WithClock(clock clockwork.Clock) Option { return func(c *Client) { c.clock = clock } }

// WithStaticToken sets the token used for calls that carry no chat id.
func WithStaticToken(token string) Option { return func(c *Client) { c.staticToken = token } }

// New creates a gateway client for baseURL.
func New(baseURL, botToken string, store TokenStore, log *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		botToken: botToken,
		store:    store,
		http:     &http.Client{},
		timeout:  defaultTimeout,
		clock:    clockwork.NewRealClock(),
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ResolveToken returns a bearer token for u: the cached one when present,
// otherwise a fresh one from silent registration. No freshness check is made.
func (c *Client) ResolveToken(ctx context.Context, u User) (string, error) {
	if u.TelegramID == 0 {
		if c.staticToken == "" {
			return "", authUnavailable(errNoStaticToken)
		}
		return c.staticToken, nil
	}

	token, err := c.store.GetAccessToken(ctx, u.TelegramID)
	if err != nil {
		return "", authUnavailable(fmt.Errorf("read access token: %w", err))
	}
	if token != "" {
		return token, nil
	}

	token, err = c.Register(ctx, u)
	if err != nil {
		c.log.Warn("silent registration failed", zap.Int64("telegramID", u.TelegramID), zap.Error(err))
		return "", authUnavailable(err)
	}
	return token, nil
}

type loginResponse struct {
	User struct {
		ID int64 `json:"id"`
	} `json:"user"`
	Tokens tokenPair `json:"tokens"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register logs the chat user in with a signed identity payload, persists
// the returned tokens and backend user id, and returns the access token.
// Missing profile hints are taken from the store.
func (c *Client) Register(ctx context.Context, u User) (string, error) {
	if c.botToken == "" {
		return "", errors.New("bot token is not configured")
	}
	profile := u.Profile
	if stored, err := c.store.GetProfile(ctx, u.TelegramID); err == nil && stored != nil {
		profile = profile.Merge(*stored)
	}

	payload := map[string]string{
		"id":         strconv.FormatInt(u.TelegramID, 10),
		"auth_date":  strconv.FormatInt(c.clock.Now().Unix(), 10),
		"username":   profile.Username,
		"first_name": profile.FirstName,
		"last_name":  profile.LastName,
		"photo_url":  profile.PhotoURL,
	}
	for k, v := range payload {
		if v == "" {
			delete(payload, k)
		}
	}
	payload["hash"] = Sign(c.botToken, payload)

	status, body, err := c.send(ctx, http.MethodPost, "/login/telegram", "", payload)
	if err != nil {
		return "", unreachable(err)
	}
	if !isSuccess(status) {
		return "", backendError(status, body)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.User.ID == 0 || resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		return "", errors.New("login response is missing user id or tokens")
	}

	backendUserID := resp.User.ID
	if err := c.store.SaveAll(ctx, &domain.Credentials{
		TelegramID:    u.TelegramID,
		AccessToken:   resp.Tokens.AccessToken,
		RefreshToken:  resp.Tokens.RefreshToken,
		BackendUserID: &backendUserID,
		Profile:       profile,
	}); err != nil {
		return "", fmt.Errorf("save credentials: %w", err)
	}

	c.log.Info("user registered",
		zap.Int64("telegramID", u.TelegramID),
		zap.Int64("backendUserID", backendUserID),
	)
	return resp.Tokens.AccessToken, nil
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token and stores it in place.
func (c *Client) RefreshAccessToken(ctx context.Context, telegramID int64) (string, error) {
	refresh, err := c.store.GetRefreshToken(ctx, telegramID)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refresh == "" {
		return "", errNoRefreshToken
	}

	var resp tokenPair
	if err := c.postTokens(ctx, "/auth/getaccesstoken", refresh, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("refresh response has no access token")
	}
	if err := c.store.UpdateAccessToken(ctx, telegramID, resp.AccessToken); err != nil {
		return "", fmt.Errorf("store access token: %w", err)
	}
	return resp.AccessToken, nil
}

// RotateTokens exchanges the stored refresh token for a new token pair and
// stores both.
func (c *Client) RotateTokens(ctx context.Context, telegramID int64) (string, error) {
	refresh, err := c.store.GetRefreshToken(ctx, telegramID)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refresh == "" {
		return "", errNoRefreshToken
	}

	var resp tokenPair
	if err := c.postTokens(ctx, "/auth/getrefreshtoken", refresh, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return "", errors.New("rotate response is missing tokens")
	}
	if err := c.store.UpdateTokens(ctx, telegramID, resp.AccessToken, resp.RefreshToken); err != nil {
		return "", fmt.Errorf("store tokens: %w", err)
	}
	c.log.Info("token pair rotated", zap.Int64("telegramID", telegramID))
	return resp.AccessToken, nil
}

func (c *Client) postTokens(ctx context.Context, path, refresh string, out *tokenPair) error {
	status, body, err := c.send(ctx, http.MethodPost, path, "", map[string]string{"refresh_token": refresh})
	if err != nil {
		return unreachable(err)
	}
	if !isSuccess(status) {
		return backendError(status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// recoverToken runs the single recovery pass after a 401: refresh first,
// silent re-registration second.
func (c *Client) recoverToken(ctx context.Context, u User) (string, error) {
	token, err := c.RefreshAccessToken(ctx, u.TelegramID)
	if err == nil {
		c.log.Info("access token refreshed", zap.Int64("telegramID", u.TelegramID))
		return token, nil
	}
	c.log.Info("refresh failed, re-registering", zap.Int64("telegramID", u.TelegramID), zap.Error(err))

	token, err = c.Register(ctx, u)
	if err != nil {
		return "", fmt.Errorf("re-register: %w", err)
	}
	return token, nil
}

// Call performs req with a resolved bearer token and decodes a 2xx JSON
// response into out (when out is non-nil). A 401 triggers exactly one
// recovery pass and one retry; everything else is returned as is.
func (c *Client) Call(ctx context.Context, req Request, out any) error {
	token, err := c.ResolveToken(ctx, req.User)
	if err != nil {
		return err
	}

	status, body, err := c.send(ctx, req.Method, req.Path, token, req.Body)
	if err != nil {
		return unreachable(err)
	}

	if status == http.StatusUnauthorized {
		if req.User.TelegramID == 0 {
			return authExpired(errStaticTokenRejected)
		}
		c.log.Warn("backend returned 401, recovering token",
			zap.Int64("telegramID", req.User.TelegramID),
			zap.String("path", req.Path),
		)
		token, err = c.recoverToken(ctx, req.User)
		if err != nil {
			return authExpired(err)
		}
		status, body, err = c.send(ctx, req.Method, req.Path, token, req.Body)
		if err != nil {
			return unreachable(err)
		}
		if status == http.StatusUnauthorized {
			return authExpired(errRejectedAfterRecover)
		}
	}

	if !isSuccess(status) {
		return backendError(status, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindBackend, Status: status, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// send issues one HTTP request. The bearer header belongs to this request
// only. Transport failures are returned as errors; any status is returned as is.
func (c *Client) send(ctx context.Context, method, path, token string, in any) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
