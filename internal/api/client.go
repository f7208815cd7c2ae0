// Package api talks to the spreadsheet backend's REST endpoints. Each call is
// one request with no retry.
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
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/keilerkonzept/sheetdash/internal/charts"
	"github.com/keilerkonzept/sheetdash/internal/records"
)

const (
	pathData         = "api/data/"
	pathUpload       = "api/upload/"
	pathGenerate     = "api/generate/start/"
	pathGenerateStop = "api/generate/stop/"
	pathRevenue      = "api/charts/revenue/"
	pathCountry      = "api/charts/country/"
	pathDynamic      = "api/charts/dynamic/"
)

// Operation names passed to the Observer and used as log fields.
const (
	OpList           = "list"
	OpUpload         = "upload"
	OpUpdate         = "update"
	OpDelete         = "delete"
	OpStopGeneration = "stop_generation"
	OpRevenueChart   = "chart_revenue"
	OpCountryChart   = "chart_country"
	OpDynamicChart   = "chart_dynamic"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s %d", e.Op, ErrUnexpectedStatus, e.Status)
	}
	return fmt.Sprintf("%s: %s %d: %s", e.Op, ErrUnexpectedStatus, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Observer receives one call per finished request.
type Observer interface {
	ObserveRequest(op string, took time.Duration, err error)
}

type Client struct {
	base     *url.URL
	http     *http.Client
	log      logrus.FieldLogger
	observer Observer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(cl *Client) { cl.log = l }
}

func WithObserver(o Observer) Option {
	return func(cl *Client) { cl.observer = o }
}

// New returns a client rooted at baseURL. A missing trailing slash is added so
// endpoint paths resolve beneath it.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint resolves an already escaped relative path against the base URL.
func (c *Client) endpoint(escaped string) string {
	path, err := url.PathUnescape(escaped)
	if err != nil {
		path = escaped
	}
	return c.base.ResolveReference(&url.URL{Path: path, RawPath: escaped}).String()
}

func recordPath(id string) string {
	return pathData + url.PathEscape(id) + "/"
}

// GenerateURL is the server-sent events endpoint that streams generated rows.
func (c *Client) GenerateURL() string { return c.endpoint(pathGenerate) }

// List fetches every record.
func (c *Client) List(ctx context.Context) ([]records.Record, error) {
	var out []records.Record
	err := c.do(ctx, OpList, http.MethodGet, pathData, nil, "", &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upload posts a spreadsheet as the multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("%s: %w", OpUpload, err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("%s: read %s: %w", OpUpload, filename, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%s: %w", OpUpload, err)
	}
	return c.do(ctx, OpUpload, http.MethodPost, pathUpload, &body, mw.FormDataContentType(), nil)
}

// Update replaces the record stored under id.
func (c *Client) Update(ctx context.Context, id string, rec records.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: encode record %s: %w", OpUpdate, id, err)
	}
	return c.do(ctx, OpUpdate, http.MethodPut, recordPath(id), bytes.NewReader(b), "application/json", nil)
}

// Delete removes the record stored under id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, OpDelete, http.MethodDelete, recordPath(id), nil, "", nil)
}

// StopGeneration asks the backend to stop producing live rows.
func (c *Client) StopGeneration(ctx context.Context) error {
	return c.do(ctx, OpStopGeneration, http.MethodPost, pathGenerateStop, nil, "", nil)
}

func (c *Client) RevenueChart(ctx context.Context) ([]charts.RevenueRow, error) {
	var out []charts.RevenueRow
	if err := c.do(ctx, OpRevenueChart, http.MethodGet, pathRevenue, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CountryChart(ctx context.Context) ([]charts.CountryRow, error) {
	var out []charts.CountryRow
	if err := c.do(ctx, OpCountryChart, http.MethodGet, pathCountry, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DynamicChart(ctx context.Context) ([]charts.DynamicRow, error) {
	var out []charts.DynamicRow
	if err := c.do(ctx, OpDynamicChart, http.MethodGet, pathDynamic, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(op, time.Since(start), err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	c.log.WithFields(logrus.Fields{"op": op, "method": method, "url": req.URL.String()}).Debug("request")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
