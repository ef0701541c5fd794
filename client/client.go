// Package client implements the roster.Gateway interface over the
// service's JSON HTTP API. It attaches the persisted session token as a
// bearer credential when present and maps wire error codes onto the
// package error taxonomy, preserving the gateway's human-readable
// message verbatim.
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

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-roster"
)

// TokenSource yields the bearer token for outgoing calls. A
// roster.SessionStore satisfies it directly.
type TokenSource interface {
	Get() (string, bool)
}

// Client talks to the user-roster gateway.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  roster.Logger
}

var _ roster.Gateway = (*Client)(nil)

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource attaches tokens to outgoing calls. Absent source or
// absent token sends no credential; the gateway rejects unauthorized
// calls on its own.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithClientLogger overrides the default logger.
func WithClientLogger(logger roster.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a client rooted at baseURL, e.g. "http://localhost:8081".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  roster.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

type otpRequestPayload struct {
	Email string `json:"email"`
}

type otpVerifyPayload struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	Role  string `json:"role,omitempty"`
}

type userPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type sessionEnvelope struct {
	Token string            `json:"token"`
	User  roster.UserRecord `json:"user"`
}

type usersEnvelope struct {
	Users []roster.UserRecord `json:"users"`
}

// RequestOTP asks the gateway to send a passcode to email.
func (c *Client) RequestOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/otp/request", otpRequestPayload{Email: email}, nil)
}

// VerifyOTP exchanges the passcode for a session token and identity.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string, role roster.UserRole) (*roster.Session, error) {
	var envelope sessionEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/otp/verify", otpVerifyPayload{Email: email, OTP: otp, Role: role}, &envelope); err != nil {
		return nil, err
	}

	// Role defaulting happens here, at the boundary where records enter
	// the system.
	envelope.User.EnsureRole()

	return &roster.Session{Token: envelope.Token, User: envelope.User}, nil
}

// ListUsers fetches the full roster.
func (c *Client) ListUsers(ctx context.Context) ([]roster.UserRecord, error) {
	var envelope usersEnvelope
	if err := c.do(ctx, http.MethodGet, "/users", nil, &envelope); err != nil {
		return nil, err
	}

	for i := range envelope.Users {
		envelope.Users[i].EnsureRole()
	}

	return envelope.Users, nil
}

// CreateUser adds a roster entry.
func (c *Client) CreateUser(ctx context.Context, name, email string) (*roster.UserRecord, error) {
	record := &roster.UserRecord{}
	if err := c.do(ctx, http.MethodPost, "/users", userPayload{Name: name, Email: email}, record); err != nil {
		return nil, err
	}

	record.EnsureRole()
	return record, nil
}

// UpdateUser edits an existing entry.
func (c *Client) UpdateUser(ctx context.Context, id, name, email string) (*roster.UserRecord, error) {
	record := &roster.UserRecord{}
	if err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), userPayload{Name: name, Email: email}, record); err != nil {
		return nil, err
	}

	record.EnsureRole()
	return record, nil
}

// DeleteUser removes an entry.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		if token, ok := c.tokens.Get(); ok && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "gateway unreachable").
			WithTextCode(roster.TextCodeNetwork)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read gateway response").
			WithTextCode(roster.TextCodeNetwork)
	}

	if res.StatusCode >= 400 {
		return decodeError(res.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Debug("malformed gateway response: %s", string(raw))
		return goerrors.Wrap(err, goerrors.CategoryOperation, "malformed gateway response").
			WithTextCode(roster.TextCodeNetwork)
	}

	return nil
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// decodeError maps a wire failure onto the package taxonomy. The stable
// code decides the category; the gateway message is preserved verbatim.
func decodeError(status int, raw []byte) error {
	var wire wireError
	if err := json.Unmarshal(raw, &wire); err != nil || wire.Error.Message == "" {
		return goerrors.New(fmt.Sprintf("gateway returned status %d", status), goerrors.CategoryOperation).
			WithTextCode(roster.TextCodeNetwork)
	}

	category := categoryForCode(wire.Error.Code, status)

	return goerrors.New(wire.Error.Message, category).
		WithTextCode(wire.Error.Code).
		WithMetadata(map[string]any{
			"status": status,
		})
}

func categoryForCode(code string, status int) goerrors.Category {
	switch code {
	case roster.TextCodeAccessDenied:
		return goerrors.CategoryAuthz
	case roster.TextCodeOTPInvalid, roster.TextCodeOTPExpired, roster.TextCodeRoleMismatch,
		roster.TextCodeTokenExpired, roster.TextCodeTokenMalformed:
		return goerrors.CategoryAuth
	case roster.TextCodeUserNotFound:
		return goerrors.CategoryNotFound
	case roster.TextCodeValidation, roster.TextCodeEmailRequired, roster.TextCodeOTPRequired:
		return goerrors.CategoryValidation
	case roster.TextCodeRateLimited:
		return goerrors.CategoryRateLimit
	case roster.TextCodeConflict:
		return goerrors.CategoryConflict
	}

	switch status {
	case http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case http.StatusForbidden:
		return goerrors.CategoryAuthz
	case http.StatusNotFound:
		return goerrors.CategoryNotFound
	case http.StatusConflict:
		return goerrors.CategoryConflict
	case http.StatusBadRequest:
		return goerrors.CategoryValidation
	case http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	default:
		return goerrors.CategoryOperation
	}
}
