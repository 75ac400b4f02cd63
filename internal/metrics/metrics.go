// Package metrics is the process-wide metrics facade.
//
// Code records through the package functions; the command wires a concrete
// Backend (Datadog, or nothing) once at startup with SetBackend. Until then
// every call is a no-op.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by the backends.
const (
	FieldsTotal         = "scrape_fields_total"
	DocumentsTotal      = "scrape_documents_total"
	EvaluationDuration  = "scrape_evaluation_duration_seconds"
	HTTPRequestsTotal   = "scrape_http_requests_total"
	HTTPErrorsTotal     = "scrape_http_errors_total"
	HTTPRequestDuration = "scrape_http_request_duration_seconds"
	HTTPDownloadBytes   = "scrape_http_download_bytes"
)

// Labels are metric dimensions, for example {"schema": "recipe", "status": "ok"}.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func get() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func IncCounter(name string, delta float64, labels Labels) {
	get().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	get().ObserveHistogram(name, value, labels)
}

// Flush asks the installed backend to submit what it has buffered.
func Flush() error { return get().Flush() }

// RecordField counts one evaluated field. status is "ok", "empty" or "error".
func RecordField(schema, status string) {
	IncCounter(FieldsTotal, 1, Labels{"schema": schema, "status": status})
}

// RecordDocument counts one evaluated document and observes how long the
// evaluation took.
func RecordDocument(schema, status string, d time.Duration) {
	IncCounter(DocumentsTotal, 1, Labels{"schema": schema, "status": status})
	ObserveHistogram(EvaluationDuration, d.Seconds(), Labels{"schema": schema, "status": status})
}

// RecordHTTP records one HTTP attempt. statusCode 0 means no response was
// received; err marks the attempt as failed.
func RecordHTTP(statusCode int, err error, d time.Duration, bytes int64) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	l := Labels{"status": status}

	IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || statusCode >= 400 {
		IncCounter(HTTPErrorsTotal, 1, l)
	}
	ObserveHistogram(HTTPRequestDuration, d.Seconds(), l)
	if bytes > 0 {
		ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}
