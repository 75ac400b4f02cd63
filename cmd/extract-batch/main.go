// Command extract-batch evaluates one extraction schema over a list of URLs
// and writes the records as JSON lines or a spreadsheet.
//
// URLs come from a text file (one per line, # comments allowed) or from a
// spreadsheet column:
//
//	extract-batch --schema recipe.yaml --inputs urls.txt > recipes.jsonl
//	extract-batch --schema recipe.yaml --xlsx urls.xlsx --column B --skip-header \
//	    --format xlsx -o recipes.xlsx
//
// Every option can also come from SCRAPE_* environment variables or a
// --config file. With --datadog, run metrics are submitted to Datadog.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"scrape/internal/batch"
	"scrape/internal/config"
	"scrape/internal/engine"
	"scrape/internal/export"
	"scrape/internal/fetch"
	"scrape/internal/metrics"
	"scrape/internal/metrics/datadog"
	"scrape/internal/schema"
)

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	HTTPClient *http.Client

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
}

// main wires real dependencies and exits with a code.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
	})
	stop()
	os.Exit(code)
}

// run executes the batch and returns an exit code.
//
// Exit codes:
//   - 0: every input was loaded and evaluated (field errors included).
//   - 1: at least one input failed, or the batch was stopped.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	cfg, err := config.Load("extract-batch", args, d.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(d.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	s, err := schema.LoadFile(cfg.SchemaPath)
	if err != nil {
		fmt.Fprintf(d.Stderr, "load schema: %v\n", err)
		return 2
	}

	urls, err := readInputs(cfg)
	if err != nil {
		fmt.Fprintf(d.Stderr, "error reading urls: %v\n", err)
		return 2
	}
	if len(urls) == 0 {
		fmt.Fprintln(d.Stderr, "no URLs found in input")
		return 2
	}

	if cfg.Datadog {
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(datadog.ParseTagsCSV(cfg.DDTags), "schema:"+s.Name)
		backend, err := d.BackendFactory(ctx, cfg.JobName, tags, cfg.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(backend)
		defer func() {
			metrics.SetBackend(nil)
			if err := backend.Close(); err != nil {
				logger.Warn("metrics.flush.failed", "err", err)
			}
		}()
	}

	client := d.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg.Workers)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = s.Encoding
	}
	loader := fetch.NewLoader(client, fetch.Options{
		Timeout:  cfg.Timeout,
		Retry:    cfg.RetryPolicy(),
		Encoding: encoding,
		Logger:   logger,
	})

	runner := batch.New(loader, engine.New(engine.Options{Loader: loader, Logger: logger}), batch.Options{
		Workers:  cfg.Workers,
		FailFast: cfg.FailFast,
		Logger:   logger,
	})

	rows, runErr := runner.Run(ctx, s, urls)
	if rows == nil {
		fmt.Fprintf(d.Stderr, "batch: %v\n", runErr)
		return 1
	}

	if err := writeOutput(ctx, cfg, s, logger, d.Stdout, rows); err != nil {
		fmt.Fprintf(d.Stderr, "write output: %v\n", err)
		return 1
	}

	if runErr != nil {
		fmt.Fprintf(d.Stderr, "batch: %v\n", runErr)
		return 1
	}
	for _, row := range rows {
		if row.Err != nil {
			return 1
		}
	}
	return 0
}

func readInputs(cfg *config.Config) ([]string, error) {
	if cfg.XLSXPath != "" {
		return export.ReadColumn(cfg.XLSXPath, cfg.Sheet, cfg.Column, cfg.SkipHeader)
	}
	return batch.ReadURLs(cfg.Inputs)
}

func writeOutput(ctx context.Context, cfg *config.Config, s *schema.Schema, logger *slog.Logger, stdout io.Writer, rows []export.Row) error {
	out := stdout
	var f *os.File
	if cfg.Output != "" {
		var err error
		if f, err = os.Create(cfg.Output); err != nil {
			return err
		}
		out = f
	}

	var err error
	switch cfg.Format {
	case config.FormatXLSX:
		err = export.NewWriter(s, logger).WriteXLSX(ctx, out, rows)
	default:
		err = export.WriteJSONL(out, rows)
	}

	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// newHTTPClient shares connections between workers. Per-attempt timeouts are
// applied by the loader.
func newHTTPClient(workers int) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: max(workers, 2),
		},
	}
}
