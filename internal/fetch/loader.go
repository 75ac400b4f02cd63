// Package fetch retrieves documents over HTTP for evaluation: per-attempt
// timeouts, retry with backoff, Retry-After, and charset decoding.
//
// Loader also satisfies extract.NestedLoader, so the same retry policy
// applies to iframe documents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scrape/internal/document"
	"scrape/internal/extract"
	"scrape/internal/metrics"
)

// Input describes where a document should come from.
type Input struct {
	// URL, if provided, is fetched via HTTP GET.
	URL string

	// Stdin is used when URL is empty. If nil, stdin reads as empty.
	Stdin io.Reader
}

// StatusError is returned for a final non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Options configures a Loader. Zero fields take defaults.
type Options struct {
	// Timeout bounds each attempt. Default 30s.
	Timeout time.Duration

	Retry RetryPolicy

	// Encoding forces the body charset instead of sniffing it.
	Encoding string

	// UserAgent defaults to "scrape/1.0".
	UserAgent string

	Logger *slog.Logger

	// sleep is a test seam; production uses sleepContext.
	sleep func(ctx context.Context, d time.Duration) bool
}

// Page is a fetched and decoded document body.
type Page struct {
	// URL is the final URL after redirects.
	URL     string
	Body    string
	Charset string
}

// Loader fetches documents with a consistent timeout and retry policy.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	retry     RetryPolicy
	encoding  string
	userAgent string
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) bool
}

var _ extract.NestedLoader = (*Loader)(nil)

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
func NewLoader(client *http.Client, opts Options) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "scrape/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.sleep == nil {
		opts.sleep = sleepContext
	}
	return &Loader{
		client:    client,
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		encoding:  opts.Encoding,
		userAgent: opts.UserAgent,
		log:       opts.Logger,
		sleep:     opts.sleep,
	}
}

// WithEncoding returns a copy of l that decodes bodies as label. An empty
// label keeps sniffing.
func (l *Loader) WithEncoding(label string) *Loader {
	cp := *l
	cp.encoding = label
	return &cp
}

// Read returns the document source for either stdin (when input.URL is
// empty) or a fetched URL, together with the URL it came from.
func (l *Loader) Read(ctx context.Context, input Input) (string, string, error) {
	if strings.TrimSpace(input.URL) == "" {
		if input.Stdin == nil {
			return "", "", nil
		}
		b, err := io.ReadAll(input.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), "", nil
	}

	p, err := l.Fetch(ctx, input.URL)
	if err != nil {
		return "", "", err
	}
	return p.Body, p.URL, nil
}

// Load fetches url and parses it into a document.
func (l *Loader) Load(ctx context.Context, url string) (document.Document, error) {
	p, err := l.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(p.Body, p.URL)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Fetch GETs url, retrying failed attempts per the retry policy. 404 and 410
// are final immediately.
//
// On a final non-2xx response the error is a *StatusError carrying up to 4KB
// of the body for debugging.
func (l *Loader) Fetch(ctx context.Context, url string) (Page, error) {
	var lastErr error
	for attempt := 1; attempt <= l.retry.MaxAttempts; attempt++ {
		page, status, retryAfter, err := l.attempt(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !retryable(status) || attempt == l.retry.MaxAttempts || ctx.Err() != nil {
			break
		}

		wait := nextRetryDelay(l.retry, status, retryAfter, attempt)
		l.log.Warn("fetch.retry",
			"url", url,
			"attempt", attempt,
			"status", status,
			"wait", wait,
			"err", err,
		)
		if !l.sleep(ctx, wait) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Page{}, errors.Join(lastErr, ctxErr)
			}
			break
		}
	}
	return Page{}, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (l *Loader) attempt(ctx context.Context, url string) (Page, int, time.Duration, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, statusFinal, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start), 0)
		return Page{}, 0, 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordHTTP(resp.StatusCode, nil, time.Since(start), int64(len(body)))
		return Page{}, resp.StatusCode, parseRetryAfter(resp.Header),
			&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	b, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, time.Since(start), int64(len(b)))
	if err != nil {
		return Page{}, 0, 0, fmt.Errorf("read body: %w", err)
	}

	text, cs, err := decodeBody(b, resp.Header.Get("Content-Type"), l.encoding)
	if err != nil {
		return Page{}, statusFinal, 0, err
	}

	l.log.Debug("fetch.ok", "url", url, "status", resp.StatusCode, "bytes", len(b), "charset", cs, "duration", time.Since(start))
	return Page{URL: resp.Request.URL.String(), Body: text, Charset: cs}, resp.StatusCode, 0, nil
}
