package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrorKind classifies a FieldError.
type ErrorKind string

const (
	MissingSource        ErrorKind = "missing_source"
	RequiredUnfilled     ErrorKind = "required_unfilled"
	FormulaFailure       ErrorKind = "formula_failure"
	TransformStepFailure ErrorKind = "transform_step_failure"
	ExtractionFailure    ErrorKind = "extraction_failure"
)

// FieldError is a problem with one field. It never stops the evaluation of
// other fields.
type FieldError struct {
	Field string
	Kind  ErrorKind
	Err   error
}

// Error renders "<field>: <message>".
func (e *FieldError) Error() string {
	switch e.Kind {
	case MissingSource:
		return e.Field + ": no source configured"
	case RequiredUnfilled:
		return e.Field + ": required field not filled"
	case FormulaFailure:
		return fmt.Sprintf("%s: computed field evaluation failed: %v", e.Field, e.Err)
	case TransformStepFailure:
		return fmt.Sprintf("%s: format step skipped: %v", e.Field, e.Err)
	case ExtractionFailure:
		return fmt.Sprintf("%s: extraction failed: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ErrorsKey is the record key errors are written under in JSON output.
const ErrorsKey = "_errors"

// Record is the result of evaluating a schema against one document: field
// values in declaration order plus the errors met on the way.
//
// Values are nil, string or float64 for extracted fields. Computed fields may
// also hold bool or []any.
type Record struct {
	keys   []string
	values map[string]any
	Errors []*FieldError
}

func newRecord(capacity int) *Record {
	return &Record{
		keys:   make([]string, 0, capacity),
		values: make(map[string]any, capacity),
	}
}

// Set stores v under name. A new name is appended after existing keys.
func (r *Record) Set(name string, v any) {
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = v
}

// Get returns the value of name and whether the record holds it at all.
// A field present with a nil value reports ok=true.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Keys returns the record keys in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Map returns a copy of the values.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// ErrorStrings returns the errors rendered as "<field>: <message>".
func (r *Record) ErrorStrings() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

func (r *Record) fail(field string, kind ErrorKind, err error) *FieldError {
	fe := &FieldError{Field: field, Kind: kind, Err: err}
	r.Errors = append(r.Errors, fe)
	return fe
}

// MarshalJSON writes the record as an object in key order, with "_errors"
// last when there are any.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(i int, key string, v any) error {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := marshalNoEscape(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	for i, k := range r.keys {
		if err := write(i, k, r.values[k]); err != nil {
			return nil, err
		}
	}
	if len(r.Errors) > 0 {
		if err := write(len(r.keys), ErrorsKey, r.ErrorStrings()); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}
