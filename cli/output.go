package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// table collects rows and prints them with columns padded to the widest cell.
// Widths are measured in terminal columns so Thai and CJK names line up.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell))
			}
		}
	}

	bold := color.New(color.Bold)
	var hdr strings.Builder
	for i, h := range t.header {
		hdr.WriteString(padRight(h, widths[i]))
		if i < len(t.header)-1 {
			hdr.WriteString("  ")
		}
	}
	bold.Fprintln(w, strings.TrimRight(hdr.String(), " "))

	for _, row := range t.rows {
		var line strings.Builder
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			line.WriteString(padRight(cell, widths[i]))
			if i < len(row)-1 {
				line.WriteString("  ")
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}

// padRight pads s with spaces to reach the target visible width.
func padRight(s string, width int) string {
	visible := runewidth.StringWidth(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// field prints a "label  value" line with the label highlighted.
func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", color.CyanString("%-12s", label+":"), value)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
