package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadColumn returns the non-empty cells of column (a letter such as "A") in
// sheet of the workbook at path. An empty sheet means the first one. When
// skipHeader is set the first row is ignored.
func ReadColumn(path, sheet, column string, skipHeader bool) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	col, err := excelize.ColumnNameToNumber(strings.ToUpper(strings.TrimSpace(column)))
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", column, err)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	var out []string
	for i, r := range rows {
		if i == 0 && skipHeader {
			continue
		}
		if col > len(r) {
			continue
		}
		if v := strings.TrimSpace(r[col-1]); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}
