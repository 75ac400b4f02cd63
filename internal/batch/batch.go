// Package batch evaluates one schema over many URLs with a bounded pool of
// workers.
//
// Results keep input order. A URL that cannot be loaded becomes a row with
// an error and the rest of the batch continues, unless FailFast is set: then
// the first failure cancels the run and inputs not started yet are marked
// ErrSkipped.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"scrape/internal/document"
	"scrape/internal/engine"
	"scrape/internal/export"
	"scrape/internal/fetch"
	"scrape/internal/schema"
)

var (
	// ErrAborted is returned by Run when FailFast stopped the batch.
	ErrAborted = errors.New("batch aborted")

	// ErrSkipped marks inputs never started because the batch was stopped.
	ErrSkipped = errors.New("skipped: batch stopped early")
)

// PageFetcher retrieves a decoded page. *fetch.Loader implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Page, error)
}

// Options configures a Runner.
type Options struct {
	// Workers bounds concurrent documents. Values < 1 mean 1.
	Workers int

	// FailFast stops the batch at the first input that cannot be loaded.
	FailFast bool

	Logger *slog.Logger
}

// Runner evaluates schemas over URL lists.
type Runner struct {
	fetcher  PageFetcher
	engine   *engine.Engine
	workers  int
	failFast bool
	log      *slog.Logger
}

// New builds a Runner. A nil eng uses an engine without a nested loader.
func New(fetcher PageFetcher, eng *engine.Engine, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if eng == nil {
		eng = engine.New(engine.Options{Logger: opts.Logger})
	}
	return &Runner{
		fetcher:  fetcher,
		engine:   eng,
		workers:  opts.Workers,
		failFast: opts.FailFast,
		log:      opts.Logger,
	}
}

// Run evaluates s for every url and returns one row per url, in order.
//
// The error is non-nil when s is invalid, when the parent context ends, or
// (with FailFast) when an input failed; rows are returned in every case but
// the first.
func (r *Runner) Run(ctx context.Context, s *schema.Schema, urls []string) ([]export.Row, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	rows := make([]export.Row, len(urls))
	done := make([]bool, len(urls))
	for i, u := range urls {
		rows[i].Source = u
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		firstOnce sync.Once
		firstErr  error
	)
	abort := func(url string, err error) {
		firstOnce.Do(func() {
			firstErr = fmt.Errorf("%w: %s: %w", ErrAborted, url, err)
			cancel()
		})
	}

	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(r.workers)
	for w := 0; w < r.workers; w++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case i, ok := <-jobs:
					if !ok {
						return
					}
					if ctx.Err() != nil {
						return
					}
					rows[i] = r.one(ctx, s, urls[i])
					done[i] = true
					if rows[i].Err != nil && r.failFast {
						abort(urls[i], rows[i].Err)
					}
				}
			}
		}()
	}

	// Producer.
	go func() {
		defer close(jobs)
		for i := range urls {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()

	failed, skipped := 0, 0
	for i := range rows {
		if !done[i] {
			rows[i].Err = ErrSkipped
			skipped++
			continue
		}
		if rows[i].Err != nil {
			failed++
		}
	}

	r.log.Info("batch.done",
		"schema", s.Name,
		"inputs", len(urls),
		"failed", failed,
		"skipped", skipped,
		"duration", time.Since(start),
	)

	if firstErr != nil {
		return rows, firstErr
	}
	return rows, context.Cause(ctx)
}

func (r *Runner) one(ctx context.Context, s *schema.Schema, url string) export.Row {
	row := export.Row{Source: url}

	page, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		r.log.Warn("batch.item.error", "url", url, "err", err)
		row.Err = err
		return row
	}

	doc, err := document.Parse(page.Body, page.URL)
	if err != nil {
		r.log.Warn("batch.item.error", "url", url, "err", err)
		row.Err = err
		return row
	}

	rec, err := r.engine.Evaluate(ctx, doc, s)
	if err != nil {
		row.Err = err
		return row
	}
	row.Record = rec

	if len(rec.Errors) > 0 {
		r.log.Debug("batch.item.partial", "url", url, "errors", len(rec.Errors))
	}
	return row
}

// ReadURLs reads one URL per line, skipping blank lines and # comments.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}
