// Command extract evaluates an extraction schema against one document (from
// stdin or a URL) or a directory of saved documents, and prints the record
// as JSON.
//
// Usage (stdin):
//
//	cat page.html | extract -schema recipe.yaml
//
// Usage (fetch URL):
//
//	extract -url "https://example.com/recipe/1" -schema recipe.yaml
//
// Usage (directory mode, one JSON array with "source_file" per record):
//
//	extract -dir "./pages" -schema recipe.yaml
//
// Usage (spreadsheet output):
//
//	extract -url "https://example.com/recipe/1" -schema recipe.yaml -format xlsx -o recipe.xlsx
//
// Explore a page before writing a schema for it:
//
//	extract -url "https://example.com/recipe/1" -explore
//
// Debug (print outer HTML blocks, or their text with -text):
//
//	cat page.html | extract -selector "div.ingredients" -text
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"scrape/internal/document"
	"scrape/internal/engine"
	"scrape/internal/export"
	"scrape/internal/fetch"
	"scrape/internal/schema"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so the command can be tested without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success (field errors are part of the record, not a failure)
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)

	onlyText := fs.Bool("text", false, "Debug: print text blocks for -selector matches (not JSON)")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	explore := fs.Bool("explore", false, "Print an overview of the page (titles, meta, links, structured data) instead of a record")
	schemaPath := fs.String("schema", "", "Path to schema file, .json or .yaml (required for extraction)")
	urlFlag := fs.String("url", "", "Optional: fetch the document from URL instead of stdin")
	timeout := fs.Duration("timeout", 20*time.Second, "Timeout per fetch attempt")
	encoding := fs.String("encoding", "", "Optional: force the document charset (overrides the schema's)")
	dirFlag := fs.String("dir", "", "Optional: directory of saved documents (one record per file)")
	format := fs.String("format", "json", "Output format: json or xlsx")
	outPath := fs.String("o", "", "Output file (required for -format xlsx)")
	verbose := fs.Bool("v", false, "Log per-field diagnostics to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	loader := fetch.NewLoader(httpClient, fetch.Options{
		Timeout:  *timeout,
		Encoding: *encoding,
		Logger:   logger,
	})
	input := fetch.Input{URL: *urlFlag, Stdin: stdin}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)

	// Debug and explore modes need a document but not a schema.
	if *debugSelector != "" || *explore {
		doc, code := load(ctx, loader, input, stderr)
		if doc == nil {
			return code
		}

		if *debugSelector != "" {
			if err := doc.DebugPrintSelector(stdout, *debugSelector, *onlyText); err != nil {
				fmt.Fprintf(stderr, "debug selector: %v\n", err)
				return 1
			}
			return 0
		}

		enc.SetIndent("", "  ")
		if err := enc.Encode(doc.Explore()); err != nil {
			fmt.Fprintf(stderr, "encode json: %v\n", err)
			return 1
		}
		return 0
	}

	// Schema-driven mode.
	if *schemaPath == "" {
		fmt.Fprintf(stderr, "missing -schema\n")
		return 2
	}
	if *format != "json" && *format != "xlsx" {
		fmt.Fprintf(stderr, "unknown -format %q (json or xlsx)\n", *format)
		return 2
	}
	if *format == "xlsx" && (*outPath == "" || *dirFlag != "") {
		fmt.Fprintf(stderr, "-format xlsx needs -o and a single document\n")
		return 2
	}

	s, err := schema.LoadFile(*schemaPath)
	if err != nil {
		fmt.Fprintf(stderr, "load schema: %v\n", err)
		return 2
	}
	if *encoding == "" && s.Encoding != "" {
		loader = loader.WithEncoding(s.Encoding)
	}

	eng := engine.New(engine.Options{Loader: loader, Logger: logger})

	// Directory mode: stream output as a single JSON array.
	if *dirFlag != "" {
		if err := eng.StreamFromDir(ctx, stdout, *dirFlag, s, enc); err != nil {
			fmt.Fprintf(stderr, "dir extract: %v\n", err)
			return 1
		}
		return 0
	}

	// Single input mode: stdin OR -url
	doc, code := load(ctx, loader, input, stderr)
	if doc == nil {
		return code
	}

	rec, err := eng.Evaluate(ctx, doc, s)
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 1
	}

	if *format == "xlsx" {
		return writeXLSX(ctx, *outPath, s, logger, source(doc), rec, stderr)
	}

	if err := enc.Encode(rec); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}

func load(ctx context.Context, loader *fetch.Loader, input fetch.Input, stderr io.Writer) (*document.HTML, int) {
	src, url, err := loader.Read(ctx, input)
	if err != nil {
		fmt.Fprintf(stderr, "load document: %v\n", err)
		return nil, 1
	}
	doc, err := document.Parse(src, url)
	if err != nil {
		fmt.Fprintf(stderr, "parse document: %v\n", err)
		return nil, 1
	}
	return doc, 0
}

func source(doc document.Document) string {
	if u := doc.URL(); u != "" {
		return u
	}
	return "stdin"
}

func writeXLSX(ctx context.Context, path string, s *schema.Schema, logger *slog.Logger, src string, rec *engine.Record, stderr io.Writer) int {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stderr, "create output: %v\n", err)
		return 1
	}

	werr := export.NewWriter(s, logger).WriteXLSX(ctx, f, []export.Row{{Source: src, Record: rec}})
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		fmt.Fprintf(stderr, "write xlsx: %v\n", werr)
		return 1
	}
	return 0
}
