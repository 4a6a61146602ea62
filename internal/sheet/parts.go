package sheet

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// Header names recognised for the part number column.
var partHeaders = map[string]bool{
	"part_number":  true,
	"part number":  true,
	"part_numbers": true,
	"partnumber":   true,
	"pn":           true,
	"mpn":          true,
}

var fold = cases.Fold()

// ReadPartNumbers loads part numbers from a .csv or .xlsx file.
func ReadPartNumbers(ctx context.Context, path string) ([]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "sheet: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err = ReadCSV(ctx, f, CSVOptions{TrimSpace: true, Comment: '#'})
	case ".xlsx":
		rows, err = ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("sheet: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return PartNumbers(rows), nil
}

// PartNumbers picks the part number column from rows. A first row naming a
// known header selects that column and is skipped; otherwise the first
// column is used. Blank and repeated values are dropped, order is kept.
func PartNumbers(rows [][]string) []string {
	col := 0
	if len(rows) > 0 {
		for i, cell := range rows[0] {
			if partHeaders[fold.String(strings.TrimSpace(cell))] {
				col = i
				rows = rows[1:]
				break
			}
		}
	}

	seen := make(map[string]bool, len(rows))
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		pn := strings.TrimSpace(row[col])
		if pn == "" || seen[pn] {
			continue
		}
		seen[pn] = true
		out = append(out, pn)
	}
	return out
}
