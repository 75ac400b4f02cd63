package export

import (
	"encoding/json"
	"fmt"
	"io"
)

type jsonLine struct {
	Source string         `json:"source"`
	Record json.Marshaler `json:"record,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// WriteJSONL writes one JSON object per row: {"source", "record"} or
// {"source", "error"}.
func WriteJSONL(out io.Writer, rows []Row) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	for _, row := range rows {
		line := jsonLine{Source: row.Source}
		if row.Err != nil {
			line.Error = row.Err.Error()
		} else if row.Record != nil {
			line.Record = row.Record
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode %s: %w", row.Source, err)
		}
	}
	return nil
}
