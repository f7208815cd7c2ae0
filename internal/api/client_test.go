package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/sheetdash/internal/charts"
	"github.com/keilerkonzept/sheetdash/internal/records"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
	err []error
}

func (o *recordingObserver) ObserveRequest(op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	o.err = append(o.err, err)
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	c, err := New(srv.URL, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
	_, err = New("://nope")
	assert.Error(t, err)
}

func TestNewKeepsBasePath(t *testing.T) {
	c, err := New("https://example.com/backend")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/backend/api/generate/start/", c.GenerateURL())
}

func TestList(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/data/", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":1,"name":"Acme","revenue":12000},{"id":2,"name":"Globex","revenue":8000}]`)
	}), WithObserver(obs))

	recs, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, []string{"name", "revenue"}, recs[0].Keys())
	assert.Equal(t, []string{OpList}, obs.ops)
	assert.NoError(t, obs.err[0])
}

func TestListStatusError(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}), WithObserver(obs))

	recs, err := c.List(context.Background())
	assert.Nil(t, recs)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "boom", se.Body)
	assert.Equal(t, OpList, se.Op)
	assert.ErrorIs(t, obs.err[0], ErrUnexpectedStatus)
}

func TestListDecodeError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not":"a list"}`)
	}))
	_, err := c.List(context.Background())
	assert.ErrorContains(t, err, "decode response")
}

func TestUploadMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/upload/", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "companies.xlsx", hdr.Filename)
		assert.Equal(t, "PK\x03\x04sheet", string(b))
		w.WriteHeader(http.StatusCreated)
	}))

	require.NoError(t, c.Upload(context.Background(), "companies.xlsx", strings.NewReader("PK\x03\x04sheet")))
}

func TestUpdateSendsRecord(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/data/5/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"id": float64(5), "name": "Acme Corp"}, body)
		w.WriteHeader(http.StatusOK)
	}))

	rec := records.New("5")
	rec.Set("name", "Acme Corp")
	require.NoError(t, c.Update(context.Background(), "5", rec))
}

func TestDelete(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, c.Delete(context.Background(), "9"))
	assert.Equal(t, "DELETE /api/data/9/", got)
}

func TestRecordIDsAreEscapedOnce(t *testing.T) {
	tests := []struct {
		id      string
		path    string
		escaped string
	}{
		{"a b", "/api/data/a b/", "/api/data/a%20b/"},
		{"50%", "/api/data/50%/", "/api/data/50%25/"},
		{"x/y", "/api/data/x/y/", "/api/data/x%2Fy/"},
		{"007", "/api/data/007/", "/api/data/007/"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var mu sync.Mutex
			var paths, escaped []string
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				defer mu.Unlock()
				paths = append(paths, r.Method+" "+r.URL.Path)
				escaped = append(escaped, r.URL.EscapedPath())
			}))

			rec := records.New(tt.id)
			rec.Set("name", "Acme")
			require.NoError(t, c.Update(context.Background(), tt.id, rec))
			require.NoError(t, c.Delete(context.Background(), tt.id))

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, []string{"PUT " + tt.path, "DELETE " + tt.path}, paths)
			assert.Equal(t, []string{tt.escaped, tt.escaped}, escaped)
		})
	}
}

func TestStopGeneration(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method + " " + r.URL.Path
	}))
	require.NoError(t, c.StopGeneration(context.Background()))
	assert.Equal(t, "POST /api/generate/stop/", got)
}

func TestChartQueries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/charts/revenue/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"name":"A","revenue":5},{"name":"B","revenue":12}]`)
	})
	mux.HandleFunc("/api/charts/country/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"country":"US","count":3}]`)
	})
	mux.HandleFunc("/api/charts/dynamic/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"employees":10,"profit":100}]`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	rev, err := c.RevenueChart(ctx)
	require.NoError(t, err)
	assert.Equal(t, []charts.RevenueRow{{Name: "A", Revenue: 5}, {Name: "B", Revenue: 12}}, rev)

	cty, err := c.CountryChart(ctx)
	require.NoError(t, err)
	assert.Equal(t, []charts.CountryRow{{Country: "US", Count: 3}}, cty)

	dyn, err := c.DynamicChart(ctx)
	require.NoError(t, err)
	assert.Equal(t, []charts.DynamicRow{{Employees: 10, Profit: 100}}, dyn)
}

func TestTransportErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(srv.URL, WithLogger(logrus.New()))
	require.NoError(t, err)

	err = c.Delete(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), OpDelete+":"))
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
