// Package render writes command results as aligned tables, JSON, YAML or TSV.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTSV   Format = "tsv"
)

// ParseFormat accepts a format name; empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, yaml or tsv)", s)
	}
}

// Table is tabular data with a parallel structured value for the
// machine-readable formats.
type Table struct {
	Headers []string
	Rows    [][]string
	// Data is encoded instead of Rows for JSON and YAML.
	Data any
}

// Renderer writes to a single writer in one format.
type Renderer struct {
	w      io.Writer
	format Format
}

// New returns a renderer for format.
func New(w io.Writer, format Format) *Renderer {
	return &Renderer{w: w, format: format}
}

// Format returns the renderer's format.
func (r *Renderer) Format() Format {
	return r.format
}

// Structured reports whether the output is machine-readable.
func (r *Renderer) Structured() bool {
	return r.format == FormatJSON || r.format == FormatYAML
}

// Value encodes v in a structured format. Table and TSV fall back to JSON.
func (r *Renderer) Value(v any) error {
	if r.format == FormatYAML {
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders t in the renderer's format.
func (r *Renderer) Table(t Table) error {
	switch r.format {
	case FormatJSON, FormatYAML:
		return r.Value(t.Data)
	case FormatTSV:
		return r.tsv(t)
	default:
		return r.aligned(t)
	}
}

func (r *Renderer) tsv(t Table) error {
	if _, err := fmt.Fprintln(r.w, strings.Join(t.Headers, "\t")); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if _, err := fmt.Fprintln(r.w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) aligned(t Table) error {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell))
			}
		}
	}

	var b strings.Builder
	writeRow(&b, t.Headers, widths)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	writeRow(&b, seps, widths)
	for _, row := range t.Rows {
		writeRow(&b, row, widths)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// writeRow pads every cell but the last, so rows carry no trailing spaces.
func writeRow(b *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		b.WriteString(cell)
		if i < len(cells)-1 && i < len(widths)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)+2))
		}
	}
	b.WriteByte('\n')
}
