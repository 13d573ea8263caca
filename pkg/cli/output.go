package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatAuto picks a table on a terminal and JSON otherwise.
	FormatAuto OutputFormat = "auto"
	// FormatTable renders a table for humans.
	FormatTable OutputFormat = "table"
	// FormatJSON is indented JSON for scripts.
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatAuto, "":
		return FormatAuto, nil
	case FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid: auto, table, json)", s)
	}
}

// Align is the horizontal alignment of a table column.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Printer writes command results in the selected format.
type Printer struct {
	w        io.Writer
	format   OutputFormat
	colorize bool
}

// NewPrinter creates a printer writing to w. FormatAuto resolves against w,
// and color is used only when w is a terminal.
func NewPrinter(w io.Writer, format OutputFormat) *Printer {
	tty := IsTerminal(w)
	if format == FormatAuto || format == "" {
		format = FormatJSON
		if tty {
			format = FormatTable
		}
	}
	return &Printer{w: w, format: format, colorize: tty}
}

// Format returns the printer's output format.
func (p *Printer) Format() OutputFormat {
	return p.format
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result writes v as JSON in JSON mode, otherwise a table of headers and
// rows. An empty table prints empty instead.
func (p *Printer) Result(v any, headers []string, rows [][]string, aligns []Align, empty string) error {
	if p.format == FormatJSON {
		return p.JSON(v)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(p.w, empty)
		return err
	}
	_, err := fmt.Fprintln(p.w, RenderTable(headers, rows, aligns))
	return err
}

// Success prints a one-line confirmation, green on a terminal.
func (p *Printer) Success(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.colorize {
		msg = text.FgGreen.Sprint(msg)
	}
	fmt.Fprintln(p.w, msg)
}

// Warn prints a one-line warning, yellow on a terminal.
func (p *Printer) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.colorize {
		msg = text.FgYellow.Sprint(msg)
	}
	fmt.Fprintln(p.w, msg)
}

// RenderTable renders rows under headers. Short rows are padded.
func RenderTable(headers []string, rows [][]string, aligns []Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
