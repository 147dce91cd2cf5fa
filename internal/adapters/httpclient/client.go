package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"golang.org/x/net/publicsuffix"

	"omraudit/internal/domain"
	"omraudit/internal/logging"
)

const (
	HeaderUser          = "X-Audit-User"
	HeaderToken         = "X-Audit-Token"
	HeaderCorrelationID = "X-Correlation-Id"

	maxErrorBody = 64 << 10
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks to the audit backend. It is safe for concurrent use.
type Client struct {
	base string
	hc   *http.Client
	log  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Jar: jar, Timeout: 30 * time.Second},
		log:  logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.base }

type request struct {
	method      string
	path        string
	query       url.Values
	creds       domain.Credentials
	body        io.Reader
	contentType string
}

func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	target := c.base + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return nil, err
	}
	corrID := uuid.NewString()
	req.Header.Set(HeaderCorrelationID, corrID)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.creds.User != "" {
		req.Header.Set(HeaderUser, r.creds.User)
	}
	if r.creds.Token != "" {
		req.Header.Set(HeaderToken, r.creds.Token)
	}

	log := logging.WithCorrelation(c.log, corrID, r.creds.User)
	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		log.Warn("request failed", "method", r.method, "path", r.path, "err", err)
		return nil, err
	}
	log.Debug("request", "method", r.method, "path", r.path, "status", resp.StatusCode, "elapsed", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}
	return resp, nil
}

// doJSON performs r and decodes a JSON body into out. A 204 or empty body
// leaves out untouched.
func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) doBlob(ctx context.Context, r request) (domain.Blob, error) {
	resp, err := c.do(ctx, r)
	if err != nil {
		return domain.Blob{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Blob{}, err
	}
	return domain.Blob{Data: b, ContentType: resp.Header.Get("Content-Type")}, nil
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

func errorFromResponse(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		msg = messageFrom(payload.Error)
		if msg == "" {
			msg = messageFrom(payload.Detail)
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if msg == "" {
		msg = "request failed"
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}

// messageFrom reads a string message, or joins the "msg" fields of a
// validation error list.
func messageFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &list) == nil {
		var parts []string
		for _, it := range list {
			if it.Msg != "" {
				parts = append(parts, it.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// addQuery appends a form-styled query parameter.
func addQuery(q url.Values, name string, v any) error {
	frag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, v)
	if err != nil {
		return fmt.Errorf("query param %s: %w", name, err)
	}
	parsed, err := url.ParseQuery(frag)
	if err != nil {
		return fmt.Errorf("query param %s: %w", name, err)
	}
	for k, vs := range parsed {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return nil
}

func pathParam(name string, v any) (string, error) {
	return runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, v)
}
