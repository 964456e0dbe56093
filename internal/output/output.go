// Package output renders command results as tables, CSV, markdown or JSON.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

var formatAliases = map[string]Format{
	"":         FormatTable,
	"table":    FormatTable,
	"json":     FormatJSON,
	"md":       FormatMarkdown,
	"markdown": FormatMarkdown,
	"csv":      FormatCSV,
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	if format, ok := formatAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return format, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", value)
}

// Tabular is a renderer-neutral table. Raw is what JSON output encodes.
type Tabular struct {
	Title  string
	Header []string
	Rows   [][]string
	Footer string
	Raw    any
}

// Render renders t in the requested format.
func Render(format Format, t Tabular) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(t.Raw, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatMarkdown:
		return renderMarkdown(t), nil
	case FormatCSV:
		return renderCSV(t)
	default:
		return newTableWriter(t).Render(), nil
	}
}

// renderCSV writes the header and rows as RFC 4180 CSV. Title and footer are
// presentation only and are dropped.
func renderCSV(t Tabular) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(t.Header) > 0 {
		if err := w.Write(t.Header); err != nil {
			return "", err
		}
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
