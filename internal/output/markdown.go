package output

import (
	"fmt"
	"strings"
)

func renderMarkdown(t Tabular) string {
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(t.Title)))
	}

	cells := make([]string, len(t.Header))
	rules := make([]string, len(t.Header))
	for i, h := range t.Header {
		cells[i] = escapeMarkdownCell(h)
		rules[i] = strings.Repeat("-", max(3, len(h)))
	}
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	sb.WriteString("|" + strings.Join(rules, "|") + "|\n")

	for _, row := range t.Rows {
		escaped := make([]string, len(row))
		for i, cell := range row {
			escaped[i] = escapeMarkdownCell(cell)
		}
		sb.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
	}

	if t.Footer != "" {
		sb.WriteString(fmt.Sprintf("\n**%s**\n", escapeMarkdownCell(t.Footer)))
	}
	return sb.String()
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
