// Package engine evaluates a schema against a loaded document.
//
// Fields are visited once each in declaration order and written into a
// Record that later computed fields can read. A computed field that refers
// to a field declared after it fails with FormulaFailure; fields are never
// reordered to make a formula resolve.
//
// Per-field problems are collected on the Record and never stop the
// evaluation. Only an invalid schema is rejected up front.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"scrape/internal/document"
	"scrape/internal/extract"
	"scrape/internal/formula"
	"scrape/internal/metrics"
	"scrape/internal/schema"
	"scrape/internal/transform"
)

// Options configures an Engine. The zero value is usable.
type Options struct {
	// Loader fetches iframe documents. Nil makes iframe fields yield nothing.
	Loader extract.NestedLoader

	// Logger receives per-field diagnostics at debug level. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Engine evaluates schemas. It holds no per-evaluation state and is safe for
// concurrent use.
type Engine struct {
	loader extract.NestedLoader
	log    *slog.Logger
}

func New(opts Options) *Engine {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Engine{loader: opts.Loader, log: lg}
}

// Evaluate runs New(Options{}).Evaluate.
func Evaluate(ctx context.Context, doc document.Document, s *schema.Schema) (*Record, error) {
	return New(Options{}).Evaluate(ctx, doc, s)
}

// Evaluate extracts, formats and computes every field of s from doc.
//
// The error is non-nil only when s itself is invalid; field problems are
// reported in Record.Errors.
func (e *Engine) Evaluate(ctx context.Context, doc document.Document, s *schema.Schema) (*Record, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	rec := newRecord(len(s.Fields))
	env := extract.Env{Loader: e.loader, Site: s.Site}

	for _, f := range s.Fields {
		status := e.field(ctx, doc, env, f, rec)
		metrics.RecordField(s.Name, status)
	}

	docStatus := "ok"
	if len(rec.Errors) > 0 {
		docStatus = "partial"
	}
	metrics.RecordDocument(s.Name, docStatus, time.Since(start))

	for _, fe := range rec.Errors {
		e.log.Debug("engine.field.error",
			"schema", s.Name,
			"field", fe.Field,
			"kind", string(fe.Kind),
			"err", fe.Error(),
		)
	}
	e.log.Debug("engine.evaluate.done",
		"schema", s.Name,
		"url", doc.URL(),
		"fields", len(s.Fields),
		"errors", len(rec.Errors),
		"duration", time.Since(start),
	)
	return rec, nil
}

// field evaluates one field into rec and returns its metrics status.
func (e *Engine) field(ctx context.Context, doc document.Document, env extract.Env, f schema.FieldDef, rec *Record) string {
	if f.Computed() {
		v, err := formula.Eval(f.Formula, rec.values)
		if err != nil {
			rec.fail(f.Name, FormulaFailure, err)
			rec.Set(f.Name, nil)
			return "error"
		}
		rec.Set(f.Name, v)
		return "ok"
	}

	if f.Source == nil {
		if f.Required {
			rec.fail(f.Name, MissingSource, nil)
			return "error"
		}
		return "empty"
	}

	status := "ok"
	raw, err := extract.Values(ctx, doc, *f.Source, env)
	if err != nil {
		rec.fail(f.Name, ExtractionFailure, err)
		if len(raw) == 0 {
			rec.Set(f.Name, nil)
			return "error"
		}
		status = "error"
	}

	v, diag := formatRaw(f, raw)
	if diag != nil {
		rec.fail(f.Name, TransformStepFailure, diag)
		status = "error"
	}

	if transform.Empty(v) && f.Format != nil && f.Format.DefaultValue != nil {
		v = normalizeDefault(f.Format.DefaultValue)
	}

	if transform.Empty(v) {
		if f.Required {
			rec.fail(f.Name, RequiredUnfilled, nil)
			status = "error"
		} else if status == "ok" {
			status = "empty"
		}
	}

	rec.Set(f.Name, v)
	return status
}

// formatRaw runs the transform pipeline over what the adapter returned.
// Nothing found is nil. A single value of a non-list field is formatted on
// its own so numbers stay numbers; otherwise the values are joined.
func formatRaw(f schema.FieldDef, raw []any) (any, error) {
	switch {
	case len(raw) == 0:
		return nil, nil
	case len(raw) == 1 && f.DataType != schema.TypeList:
		return transform.Format(raw[0], f.Format)
	default:
		return transform.Format(raw, f.Format)
	}
}

// normalizeDefault keeps default values inside the record value types.
func normalizeDefault(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case string, float64, bool:
		return x
	default:
		return fmt.Sprint(x)
	}
}
