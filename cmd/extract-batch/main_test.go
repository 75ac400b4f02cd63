package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"scrape/internal/metrics"
)

// testBackend records what the command sends to the metrics facade.
type testBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	closed   bool
}

func (b *testBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[name] += delta
}
func (b *testBackend) ObserveHistogram(name string, value float64, labels metrics.Labels) {}
func (b *testBackend) Flush() error                                                       { return nil }
func (b *testBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

const schemaJSON = `{
	"name": "recipe",
	"fields": {
		"title": {"data_type": "text", "required": true, "source": {"type": "css", "selector": "h1"}},
		"kcal":  {"data_type": "number", "source": {"type": "css", "selector": ".kcal"},
		          "format": {"convert_to_number": true}}
	}
}`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<h1>Recipe %s</h1><b class="kcal">%d kcal</b>`, r.URL.Path[1:], 100*len(r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()

	var lines []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		lines = append(lines, m)
	}
	return lines
}

// TestRun_JSONLines verifies the text-file input path writes one line per
// URL in input order and exits 0 when every URL loads.
func TestRun_JSONLines(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "recipe.json", schemaJSON)
	inputs := writeFile(t, dir, "urls.txt", "# list\n"+srv.URL+"/a\n"+srv.URL+"/bb\n")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--schema", schemaPath, "--inputs", inputs, "--workers", "2", "--log-level", "error",
	}, deps{Stdout: &stdout, Stderr: &stderr, HTTPClient: srv.Client()})
	require.Equal(t, 0, code, stderr.String())

	lines := decodeLines(t, stdout.String())
	require.Len(t, lines, 2)
	assert.Equal(t, srv.URL+"/a", lines[0]["source"])
	assert.Equal(t, map[string]any{"title": "Recipe a", "kcal": 200.0}, lines[0]["record"])
	assert.Equal(t, map[string]any{"title": "Recipe bb", "kcal": 300.0}, lines[1]["record"])
}

// TestRun_FailedInputExitsOne verifies a URL that cannot be loaded is kept
// in the output and turns the exit code to 1.
func TestRun_FailedInputExitsOne(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "recipe.json", schemaJSON)
	inputs := writeFile(t, dir, "urls.txt", srv.URL+"/gone\n"+srv.URL+"/a\n")
	out := filepath.Join(dir, "out.jsonl")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--schema", schemaPath, "--inputs", inputs, "-o", out, "--retry-attempts", "1", "--log-level", "error",
	}, deps{Stdout: &stdout, Stderr: &stderr, HTTPClient: srv.Client()})
	require.Equal(t, 1, code, stderr.String())
	assert.Empty(t, stdout.String())

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := decodeLines(t, string(b))
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0]["error"], "http status 404")
	assert.NotNil(t, lines[1]["record"])
}

// TestRun_XLSXInAndOut verifies URLs can come from a spreadsheet column and
// records can be written as a sheet.
func TestRun_XLSXInAndOut(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "recipe.json", schemaJSON)

	in := excelize.NewFile()
	sheet := in.GetSheetName(0)
	require.NoError(t, in.SetCellValue(sheet, "B1", "url"))
	require.NoError(t, in.SetCellValue(sheet, "B2", srv.URL+"/a"))
	require.NoError(t, in.SetCellValue(sheet, "B3", srv.URL+"/ccc"))
	inPath := filepath.Join(dir, "urls.xlsx")
	require.NoError(t, in.SaveAs(inPath))
	require.NoError(t, in.Close())

	outPath := filepath.Join(dir, "recipes.xlsx")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--schema", schemaPath, "--xlsx", inPath, "--column", "b", "--skip-header",
		"--format", "xlsx", "-o", outPath, "--log-level", "error",
	}, deps{Stdout: &stdout, Stderr: &stderr, HTTPClient: srv.Client()})
	require.Equal(t, 0, code, stderr.String())

	f, err := excelize.OpenFile(outPath)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("recipe")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"source", "title", "kcal", "errors"}, rows[0])
	assert.Equal(t, []string{srv.URL + "/a", "Recipe a", "200"}, rows[1])
	assert.Equal(t, []string{srv.URL + "/ccc", "Recipe ccc", "400"}, rows[2])
}

// TestRun_Datadog verifies the backend factory is used when metrics are
// enabled and the backend is closed at the end of the run.
func TestRun_Datadog(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "recipe.json", schemaJSON)
	inputs := writeFile(t, dir, "urls.txt", srv.URL+"/a\n")

	backend := &testBackend{counters: map[string]float64{}}
	var gotJob string
	var gotTags []string

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--schema", schemaPath, "--inputs", inputs, "--datadog", "--dd-tags", "env:test", "--job", "nightly",
		"--log-level", "error",
	}, deps{
		Stdout:     &stdout,
		Stderr:     &stderr,
		HTTPClient: srv.Client(),
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			gotJob, gotTags = jobName, tags
			return backend, nil
		},
	})
	require.Equal(t, 0, code, stderr.String())

	assert.Equal(t, "nightly", gotJob)
	assert.Equal(t, []string{"env:test", "schema:recipe"}, gotTags)
	assert.True(t, backend.closed)
	assert.Equal(t, 1.0, backend.counters[metrics.DocumentsTotal])
	assert.Equal(t, 2.0, backend.counters[metrics.FieldsTotal])
	assert.Equal(t, 1.0, backend.counters[metrics.HTTPRequestsTotal])
}

// TestRun_ConfigErrors verifies run() returns exit code 2 for configuration issues.
func TestRun_ConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "recipe.json", schemaJSON)
	empty := writeFile(t, dir, "empty.txt", "# nothing\n")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--nope"}},
		{"missing schema", []string{"--inputs", empty}},
		{"schema not found", []string{"--schema", filepath.Join(dir, "none.json"), "--inputs", empty}},
		{"inputs not found", []string{"--schema", schemaPath, "--inputs", filepath.Join(dir, "none.txt")}},
		{"no urls", []string{"--schema", schemaPath, "--inputs", empty}},
		{"datadog without factory", []string{"--schema", schemaPath, "--inputs", writeFile(t, dir, "u.txt", "http://127.0.0.1:1/\n"), "--datadog"}},
	}

	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), tt.args, deps{Stdout: &stdout, Stderr: &stderr})
		assert.Equal(t, 2, code, "%s: stderr=%s", tt.name, stderr.String())
	}
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--help"}, deps{Stderr: &stderr})
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "--schema")
}
