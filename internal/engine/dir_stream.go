package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"scrape/internal/document"
	"scrape/internal/schema"
)

// SourceFileKey is added to each record emitted by StreamFromDir.
const SourceFileKey = "source_file"

// StreamFromDir evaluates s against every file in dir and streams a single
// JSON array to w, one object per file, each carrying "source_file".
//
// Files are visited in filename order. Unreadable files and subdirectories
// are skipped. A cancelled ctx stops the stream with ctx.Err(). A schema
// with its own field named SourceFileKey is rejected before anything is
// written.
func (e *Engine) StreamFromDir(ctx context.Context, w io.Writer, dir string, s *schema.Schema, enc *json.Encoder) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, ok := s.Field(SourceFileKey); ok {
		return fmt.Errorf("%w: field %q is reserved in directory mode", schema.ErrInvalidSchema, SourceFileKey)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		full := filepath.Join(dir, ent.Name())
		b, err := os.ReadFile(full)
		if err != nil {
			e.log.Warn("engine.dir.read_failed", "file", full, "err", err)
			continue
		}

		doc, err := document.Parse(string(b), "")
		if err != nil {
			e.log.Warn("engine.dir.parse_failed", "file", full, "err", err)
			continue
		}

		rec, err := e.Evaluate(ctx, doc, s)
		if err != nil {
			return err
		}
		rec.Set(SourceFileKey, ent.Name())

		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write comma: %w", err)
			}
		}
		first = false
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}
