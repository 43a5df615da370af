// Package api talks to the statement extraction backend over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/source"
)

const (
	DefaultFetchTimeout  = 15 * time.Second
	DefaultUploadTimeout = 120 * time.Second

	// maxBodyBytes bounds how much of a response body is read.
	maxBodyBytes = 32 << 20
)

// TokenSource yields the bearer token sent with every request. An empty
// token means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Options configures a Client.
type Options struct {
	BaseURL       string
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
	Tokens        TokenSource
	HTTPClient    *http.Client
	Logger        *log.Logger
}

// Client implements source.Source against the backend REST API.
type Client struct {
	base          *url.URL
	http          *http.Client
	tokens        TokenSource
	fetchTimeout  time.Duration
	uploadTimeout time.Duration
	logger        *log.Logger
}

var _ source.Source = (*Client)(nil)

// New validates the base URL and fills in default timeouts.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("api base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base URL must be http or https, got %q", raw)
	}
	c := &Client{
		base:          base,
		http:          opts.HTTPClient,
		tokens:        opts.Tokens,
		fetchTimeout:  opts.FetchTimeout,
		uploadTimeout: opts.UploadTimeout,
		logger:        opts.Logger,
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = DefaultFetchTimeout
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = DefaultUploadTimeout
	}
	if c.http == nil {
		// The per-request contexts carry the real deadlines; this is a
		// backstop for requests issued without one.
		c.http = &http.Client{Timeout: c.uploadTimeout}
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	c.logger = c.logger.WithComponent(log.ComponentFetch)
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return nil
}

// FetchTransactions issues GET /movimientos, adding ?categoria= when a
// filter is set. Rows are returned exactly as the backend sent them.
func (c *Client) FetchTransactions(ctx context.Context, categoryFilter string) (core.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	var q url.Values
	if categoryFilter != "" {
		q = url.Values{"categoria": {categoryFilter}}
	}
	fail := func(status int, detail string, err error) error {
		return &core.FetchError{Filter: categoryFilter, StatusCode: status, Detail: detail, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/movimientos", q), nil)
	if err != nil {
		return nil, fail(0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, fail(0, "", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Fetch failed", log.NewFields().
			WithOperation(log.OpFetch).WithErrorType(errorType(err)).WithError(err).ToSlice()...)
		return nil, fail(0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, detailOf(body), nil)
	}
	snap, err := core.DecodeSnapshot(body)
	if err != nil {
		return nil, fail(resp.StatusCode, "", err)
	}
	c.logger.DebugContext(ctx, "Fetched movements",
		log.FieldFilter, categoryFilter,
		log.FieldCount, len(snap),
		log.FieldDuration, time.Since(start).Milliseconds())
	return snap, nil
}

type uploadResponse struct {
	OK       bool     `json:"ok"`
	Inserted int      `json:"insertados"`
	Opening  *float64 `json:"saldo_inicial"`
	Closing  *float64 `json:"saldo_final"`
	Detail   string   `json:"detail"`
}

// result converts the response. A balance that cannot be represented is
// left unset since the statement was already ingested.
func (r uploadResponse) result() core.UploadResult {
	return core.UploadResult{
		OK:             r.OK,
		Inserted:       r.Inserted,
		OpeningBalance: balance(r.Opening),
		ClosingBalance: balance(r.Closing),
	}
}

func balance(f *float64) *core.Money {
	if f == nil {
		return nil
	}
	m, err := core.MoneyFromFloat(*f)
	if err != nil {
		return nil
	}
	return &m
}

// UploadStatement posts the statement as multipart fields "file" and
// "password". The password field is always sent, empty when absent.
func (c *Client) UploadStatement(ctx context.Context, st source.Statement, passphrase string) (core.UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, contentType, err := multipartBody(st, passphrase)
	if err != nil {
		return core.UploadResult{}, &core.UploadError{Cause: "no se pudo leer el archivo", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/movimientos/upload-pdf", nil), body)
	if err != nil {
		return core.UploadResult{}, &core.UploadError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return core.UploadResult{}, &core.UploadError{Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.UploadResult{}, &core.UploadError{Cause: core.MsgConnection, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return core.UploadResult{}, &core.UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.UploadResult{}, &core.UploadError{StatusCode: resp.StatusCode, Cause: detailOr(raw, core.MsgUploadFailed)}
	}
	var ur uploadResponse
	if err := json.Unmarshal(raw, &ur); err != nil {
		return core.UploadResult{}, &core.UploadError{StatusCode: resp.StatusCode, Cause: core.MsgUploadFailed, Err: err}
	}
	if !ur.OK {
		cause := ur.Detail
		if cause == "" {
			cause = core.MsgUploadFailed
		}
		return core.UploadResult{}, &core.UploadError{StatusCode: resp.StatusCode, Cause: cause}
	}
	return ur.result(), nil
}

func multipartBody(st source.Statement, passphrase string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, st.Filename))
	ct := st.ContentType
	if ct == "" {
		ct = source.TypePDF
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, st.Content); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("password", passphrase); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func errorType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return log.ErrorTypeTimeout
	}
	return log.ErrorTypeNetwork
}
