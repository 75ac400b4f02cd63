package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrape/internal/engine"
	"scrape/internal/fetch"
	"scrape/internal/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/untitled":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><body><p>nothing</p></body></html>`)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, `<html><body><h1>Page %s</h1><span class="kcal">%d kcal</span></body></html>`, r.URL.Path[1:], len(r.URL.Path)*100)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()

	s, err := schema.New("page",
		schema.FieldDef{Name: "title", DataType: schema.TypeText, Required: true,
			Source: &schema.SourceSpec{Kind: schema.KindCSS, Selector: "h1"}},
		schema.FieldDef{Name: "kcal", DataType: schema.TypeNumber,
			Source: &schema.SourceSpec{Kind: schema.KindCSS, Selector: ".kcal"},
			Format: &schema.FormatSpec{ConvertToNumber: true}},
	)
	require.NoError(t, err)
	return s
}

func newRunner(srv *httptest.Server, opts Options) *Runner {
	loader := fetch.NewLoader(srv.Client(), fetch.Options{
		Retry:  fetch.RetryPolicy{MaxAttempts: 1},
		Logger: quietLogger(),
	})
	opts.Logger = quietLogger()
	return New(loader, engine.New(engine.Options{Loader: loader, Logger: opts.Logger}), opts)
}

// TestRun_KeepsInputOrder verifies rows follow input order regardless of
// which worker finished first, and failures stay per input.
func TestRun_KeepsInputOrder(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	r := newRunner(srv, Options{Workers: 3})

	urls := []string{srv.URL + "/a", srv.URL + "/missing", srv.URL + "/bb", srv.URL + "/untitled", srv.URL + "/c"}
	rows, err := r.Run(context.Background(), testSchema(t), urls)
	require.NoError(t, err)
	require.Len(t, rows, len(urls))

	for i, row := range rows {
		assert.Equal(t, urls[i], row.Source)
	}

	title, _ := rows[0].Record.Get("title")
	assert.Equal(t, "Page a", title)
	kcal, _ := rows[2].Record.Get("kcal")
	assert.Equal(t, 300.0, kcal)

	var se *fetch.StatusError
	require.ErrorAs(t, rows[1].Err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Nil(t, rows[1].Record)

	// A partial record is not an input failure.
	require.NoError(t, rows[3].Err)
	assert.Equal(t, []string{"title: required field not filled"}, rows[3].Record.ErrorStrings())
}

// TestRun_FailFast verifies the first failure stops the batch and later
// inputs are marked skipped without being fetched.
func TestRun_FailFast(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newServer(t, &hits)
	r := newRunner(srv, Options{Workers: 1, FailFast: true})

	urls := []string{srv.URL + "/a", srv.URL + "/missing", srv.URL + "/b", srv.URL + "/c"}
	rows, err := r.Run(context.Background(), testSchema(t), urls)

	require.ErrorIs(t, err, ErrAborted)
	var se *fetch.StatusError
	require.ErrorAs(t, err, &se)

	require.NoError(t, rows[0].Err)
	assert.ErrorAs(t, rows[1].Err, &se)
	assert.ErrorIs(t, rows[2].Err, ErrSkipped)
	assert.ErrorIs(t, rows[3].Err, ErrSkipped)
	assert.Equal(t, int64(2), hits.Load())
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newServer(t, &hits)
	r := newRunner(srv, Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, err := r.Run(ctx, testSchema(t), []string{srv.URL + "/a", srv.URL + "/b"})
	require.ErrorIs(t, err, context.Canceled)
	for _, row := range rows {
		assert.ErrorIs(t, row.Err, ErrSkipped)
	}
	assert.Equal(t, int64(0), hits.Load())
}

func TestRun_InvalidSchema(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil)
	r := newRunner(srv, Options{})

	bad := &schema.Schema{Name: "bad", Fields: []schema.FieldDef{{Name: "", DataType: schema.TypeText}}}
	rows, err := r.Run(context.Background(), bad, []string{srv.URL + "/a"})
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)
	assert.Nil(t, rows)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	r := New(fetch.NewLoader(nil, fetch.Options{}), nil, Options{Workers: -3})
	assert.Equal(t, 1, r.workers)
	assert.NotNil(t, r.engine)
	assert.NotNil(t, r.log)
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) (fetch.Page, error) {
	return fetch.Page{}, errors.New("offline")
}

// TestRun_FetcherSeam verifies any PageFetcher can drive a batch.
func TestRun_FetcherSeam(t *testing.T) {
	t.Parallel()

	r := New(failingFetcher{}, nil, Options{Workers: 2, Logger: quietLogger()})
	rows, err := r.Run(context.Background(), testSchema(t), []string{"u1", "u2"})
	require.NoError(t, err)
	for _, row := range rows {
		assert.EqualError(t, row.Err, "offline")
	}
}

func TestReadURLs(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "urls.txt")
	body := "# recipes\nhttps://example.com/a\n\n  https://example.com/b  \n#https://example.com/c\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	got, err := ReadURLs(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, got)

	_, err = ReadURLs(filepath.Join(t.TempDir(), "none.txt"))
	assert.Error(t, err)
}
