// Package schema describes the record a document is turned into: an ordered
// set of named fields, each with an extraction source and a formatting
// recipe, or a formula computed from fields declared before it.
//
// Schema values are built once (in code or by LoadFile) and only read during
// evaluation. Nothing in this package fetches or evaluates anything.
package schema

// SourceKind selects the extraction mechanism for a field.
//
// The set is closed: every kind has exactly one adapter in internal/extract,
// and adding a kind means adding a handler there.
type SourceKind string

const (
	KindCSS    SourceKind = "css"     // CSS selector over the element tree
	KindXPath  SourceKind = "xpath"   // XPath query over the element tree
	KindJSON   SourceKind = "json"    // dotted path over the __NEXT_DATA__ block
	KindJSONLD SourceKind = "json-ld" // top-level key of the first JSON-LD block
	KindRegex  SourceKind = "regex"   // pattern over the raw document source
	KindIframe SourceKind = "iframe"  // CSS selector inside a nested document
)

// Kinds lists every supported source kind in a stable order.
var Kinds = []SourceKind{KindCSS, KindXPath, KindJSON, KindJSONLD, KindRegex, KindIframe}

// Valid reports whether k is one of Kinds.
func (k SourceKind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// DataType is the declared type of a field.
type DataType string

const (
	TypeText     DataType = "text"
	TypeNumber   DataType = "number"
	TypeList     DataType = "list"
	TypeComputed DataType = "computed"
)

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeList, TypeComputed:
		return true
	}
	return false
}

// SourceSpec says where a field's raw value comes from.
type SourceSpec struct {
	Kind     SourceKind `json:"type" yaml:"type"`
	Selector string     `json:"selector" yaml:"selector"`

	// Attribute, when set on an element-matching kind, extracts that
	// attribute instead of the element text. Elements missing it are skipped.
	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`

	// Group selects a capture group for KindRegex. 0 means the whole match.
	Group int `json:"group,omitempty" yaml:"group,omitempty"`

	// Inner is the CSS selector applied inside each nested document for
	// KindIframe. Selector then matches the iframe elements themselves.
	Inner string `json:"inner,omitempty" yaml:"inner,omitempty"`
}

// DefaultSeparator joins list values when FormatSpec.Separator is empty.
const DefaultSeparator = " | "

// Separator keywords that prefix items with a counter instead of joining
// them with a literal string.
const (
	SeparatorNumbered = "numbered" // 1. a 2. b
	SeparatorCyrillic = "cyrillic" // а. a б. b
	SeparatorLatin    = "latin"    // a. a b. b
)

// FormatSpec is the ordered normalization recipe applied to each raw value.
// All fields are optional; pointer fields distinguish "unset" from zero.
type FormatSpec struct {
	RemoveFragments     []string `json:"remove_text,omitempty" yaml:"remove_text,omitempty"`
	NormalizeWhitespace bool     `json:"normalize_whitespace,omitempty" yaml:"normalize_whitespace,omitempty"`
	RegexPattern        string   `json:"regex_pattern,omitempty" yaml:"regex_pattern,omitempty"`
	RegexGroup          int      `json:"regex_group,omitempty" yaml:"regex_group,omitempty"`
	ConvertToNumber     bool     `json:"convert_to_number,omitempty" yaml:"convert_to_number,omitempty"`
	MultiplyBy          *float64 `json:"multiply_by,omitempty" yaml:"multiply_by,omitempty"`
	DivideBy            *float64 `json:"divide_by,omitempty" yaml:"divide_by,omitempty"`
	RoundTo             *int     `json:"round_to,omitempty" yaml:"round_to,omitempty"`

	// DateFormat is accepted and carried but has no effect yet.
	DateFormat string `json:"date_format,omitempty" yaml:"date_format,omitempty"`

	Separator    string `json:"separator,omitempty" yaml:"separator,omitempty"`
	DefaultValue any    `json:"default_value,omitempty" yaml:"default_value,omitempty"`
}

// ListSeparator returns the configured separator or DefaultSeparator.
// It is safe to call on a nil receiver.
func (f *FormatSpec) ListSeparator() string {
	if f == nil || f.Separator == "" {
		return DefaultSeparator
	}
	return f.Separator
}

// FieldDef is one named field of a Schema.
type FieldDef struct {
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	DataType DataType    `json:"data_type" yaml:"data_type"`
	Source   *SourceSpec `json:"source,omitempty" yaml:"source,omitempty"`
	Format   *FormatSpec `json:"format,omitempty" yaml:"format,omitempty"`
	Formula  string      `json:"formula,omitempty" yaml:"formula,omitempty"`
	Required bool        `json:"required,omitempty" yaml:"required,omitempty"`
}

// Computed reports whether the field is derived by a formula.
func (f FieldDef) Computed() bool { return f.DataType == TypeComputed }

// Schema is a named, ordered list of fields.
//
// Field order is significant: a computed field can only reference fields
// declared before it.
type Schema struct {
	Name     string     `json:"name" yaml:"name"`
	Fields   []FieldDef `json:"fields" yaml:"fields"`
	Site     string     `json:"site,omitempty" yaml:"site,omitempty"`
	Encoding string     `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// Field returns the field called name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}
