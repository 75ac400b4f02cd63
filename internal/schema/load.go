package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemafile.json
var schemaFileJSON string

var compileFileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("schemafile.json", schemaFileJSON)
})

// LoadFile reads a schema definition from disk. Files ending in .yaml or .yml
// are read as YAML, everything else as JSON.
//
// Fields may be written either as a mapping keyed by field name (declaration
// order is kept) or as a list of objects carrying a "name" key.
func LoadFile(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(b)
	default:
		return ParseJSON(b)
	}
}

// ParseJSON decodes and validates a JSON schema definition.
func ParseJSON(b []byte) (*Schema, error) {
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse schema json: %w", err)
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}

	var head struct {
		Name     string          `json:"name"`
		Site     string          `json:"site"`
		Encoding string          `json:"encoding"`
		Fields   json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("parse schema json: %w", err)
	}

	fields, err := decodeJSONFields(head.Fields)
	if err != nil {
		return nil, err
	}
	return finish(&Schema{Name: head.Name, Site: head.Site, Encoding: head.Encoding, Fields: fields})
}

// decodeJSONFields walks the "fields" value token by token so that a mapping
// keeps the order it was written in.
func decodeJSONFields(raw json.RawMessage) ([]FieldDef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []FieldDef
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("parse fields: %w", err)
		}
		return list, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse fields: %w", err)
	}

	var fields []FieldDef
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse fields: %w", err)
		}
		key, _ := tok.(string)

		var f FieldDef
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse field %q: %w", key, err)
		}
		f.Name = key
		fields = append(fields, f)
	}
	return fields, nil
}

// ParseYAML decodes and validates a YAML schema definition.
func ParseYAML(b []byte) (*Schema, error) {
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}

	// Round-trip through JSON so the validator sees the same value shapes
	// as for a JSON file.
	j, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	var doc any
	if err := json.Unmarshal(j, &doc); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}

	var head struct {
		Name     string    `yaml:"name"`
		Site     string    `yaml:"site"`
		Encoding string    `yaml:"encoding"`
		Fields   yaml.Node `yaml:"fields"`
	}
	if err := yaml.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}

	var fields []FieldDef
	switch head.Fields.Kind {
	case yaml.SequenceNode:
		if err := head.Fields.Decode(&fields); err != nil {
			return nil, fmt.Errorf("parse fields: %w", err)
		}
	case yaml.MappingNode:
		content := head.Fields.Content
		for i := 0; i+1 < len(content); i += 2 {
			key := content[i].Value
			var f FieldDef
			if err := content[i+1].Decode(&f); err != nil {
				return nil, fmt.Errorf("parse field %q: %w", key, err)
			}
			f.Name = key
			fields = append(fields, f)
		}
	}

	return finish(&Schema{Name: head.Name, Site: head.Site, Encoding: head.Encoding, Fields: fields})
}

func checkDocument(doc any) error {
	sch, err := compileFileSchema()
	if err != nil {
		return fmt.Errorf("compile schema file definition: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	return nil
}

func finish(s *Schema) (*Schema, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
