package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"finbot/internal/core"
	"finbot/internal/log"
)

const msgBadLogin = "Credenciales incorrectas"

// AuthError is a rejected login or registration.
type AuthError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *AuthError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("auth: status %d: %s", e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("auth: %v", e.Err)
	}
	return fmt.Sprintf("auth: status %d", e.StatusCode)
}

func (e *AuthError) Unwrap() error { return e.Err }

// LoginResult is the backend answer to a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	User        string `json:"usuario"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out struct {
		LoginResult
		OK bool `json:"ok"`
	}
	if err := c.postForm(ctx, "/auth/login", url.Values{
		"email":    {email},
		"password": {password},
	}, &out); err != nil {
		c.logAuthFailure(ctx, log.OpLogin, err)
		return LoginResult{}, err
	}
	if out.AccessToken == "" {
		err := &AuthError{StatusCode: http.StatusOK, Detail: msgBadLogin}
		c.logAuthFailure(ctx, log.OpLogin, err)
		return LoginResult{}, err
	}
	c.logger.InfoContext(ctx, "Logged in", log.FieldOperation, log.OpLogin)
	return out.LoginResult, nil
}

// Register creates an account and returns the backend confirmation message.
func (c *Client) Register(ctx context.Context, name, email, password string) (string, error) {
	var out struct {
		OK      bool   `json:"ok"`
		Message string `json:"mensaje"`
	}
	if err := c.postForm(ctx, "/auth/register", url.Values{
		"nombre":   {name},
		"email":    {email},
		"password": {password},
	}, &out); err != nil {
		c.logAuthFailure(ctx, log.OpRegister, err)
		return "", err
	}
	c.logger.InfoContext(ctx, "Account registered", log.FieldOperation, log.OpRegister)
	return out.Message, nil
}

func (c *Client) logAuthFailure(ctx context.Context, op string, err error) {
	c.logger.WarnContext(ctx, "Authentication request failed", log.NewFields().
		WithOperation(op).WithErrorType(log.ErrorTypeAuth).WithError(err).ToSlice()...)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, into any) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &AuthError{Detail: core.MsgConnection, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &AuthError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AuthError{StatusCode: resp.StatusCode, Detail: detailOf(body)}
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// detailOf extracts the "detail" member of an error body. Validation
// errors carry a list instead of a string; the first msg is used then.
func detailOf(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(e.Detail, &list); err == nil && len(list) > 0 {
		return list[0].Msg
	}
	return string(e.Detail)
}

func detailOr(body []byte, fallback string) string {
	if d := detailOf(body); d != "" {
		return d
	}
	return fallback
}

// UserMessage returns the backend detail, or a generic connection message.
func (e *AuthError) UserMessage() string {
	if e.Detail != "" {
		return e.Detail
	}
	return core.MsgConnection
}
