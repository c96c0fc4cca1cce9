package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Leading characters a spreadsheet would evaluate as a formula.
const formulaPrefixes = "=+-@\t\r"

// CSVExporter renders Dataset records into CSV bytes for spreadsheet import.
type CSVExporter struct {
	// Raw disables formula escaping.
	Raw bool
}

// NewCSVExporter builds a CSV exporter that escapes formula cells.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the header row followed by one record per dataset row. The
// title is not part of the CSV body.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range data.Rows {
		record := data.record(row)
		if !e.Raw {
			for j := range record {
				record[j] = escapeFormula(record[j])
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// escapeFormula quotes cells like "=HYPERLINK(...)" so they import as text.
// Plain negative numbers are left alone.
func escapeFormula(value string) string {
	if value == "" || !strings.ContainsRune(formulaPrefixes, rune(value[0])) {
		return value
	}
	if value[0] == '-' && isNumber(value[1:]) {
		return value
	}
	return "'" + value
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for _, r := range s {
		switch {
		case r == '.' && !dot:
			dot = true
		case r < '0' || r > '9':
			return false
		}
	}
	return true
}
