package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSchema wraps every problem reported by Validate.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrDuplicateField is reported when two fields share a name.
	ErrDuplicateField = errors.New("duplicate field name")
)

// New builds a Schema from fields and validates it.
func New(name string, fields ...FieldDef) (*Schema, error) {
	s := &Schema{Name: name, Fields: fields}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the invariants evaluation relies on and returns all
// violations joined together.
//
// A required field without a source is NOT a violation here: evaluation
// reports it per field so the rest of the record is still produced.
func (s *Schema) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(s.Fields))

	for i, f := range s.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%w: field #%d has no name", ErrInvalidSchema, i))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%w: %w: %q", ErrInvalidSchema, ErrDuplicateField, name))
		}
		seen[name] = struct{}{}

		if !f.DataType.Valid() {
			errs = append(errs, fmt.Errorf("%w: field %q: unknown data type %q", ErrInvalidSchema, name, f.DataType))
		}
		if f.Computed() {
			if strings.TrimSpace(f.Formula) == "" {
				errs = append(errs, fmt.Errorf("%w: field %q: computed field has no formula", ErrInvalidSchema, name))
			}
			continue
		}

		if src := f.Source; src != nil {
			if !src.Kind.Valid() {
				errs = append(errs, fmt.Errorf("%w: field %q: unknown source type %q", ErrInvalidSchema, name, src.Kind))
			}
			if strings.TrimSpace(src.Selector) == "" {
				errs = append(errs, fmt.Errorf("%w: field %q: empty selector", ErrInvalidSchema, name))
			}
			if src.Kind == KindIframe && strings.TrimSpace(src.Inner) == "" {
				errs = append(errs, fmt.Errorf("%w: field %q: iframe source needs an inner selector", ErrInvalidSchema, name))
			}
			if src.Group < 0 {
				errs = append(errs, fmt.Errorf("%w: field %q: negative regex group", ErrInvalidSchema, name))
			}
		}
		if f.Format != nil && f.Format.RegexGroup < 0 {
			errs = append(errs, fmt.Errorf("%w: field %q: negative regex_group", ErrInvalidSchema, name))
		}
	}

	return errors.Join(errs...)
}
