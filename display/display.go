// Package display renders command results as JSON, YAML or terminal tables.
package display

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/teranos/semcluster/errors"
)

// Output formats accepted by -o/--output flags
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// MarshalJSON marshals v with two-space indentation
func MarshalJSON(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal JSON")
	}
	return data, nil
}

// WriteJSON writes v as indented JSON followed by a newline
func WriteJSON(w io.Writer, v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// WriteYAML writes v as YAML, preceded by a comment line when header is set
func WriteYAML(w io.Writer, v interface{}, header string) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal YAML")
	}
	if header != "" {
		if _, err := fmt.Fprintf(w, "# %s\n", header); err != nil {
			return err
		}
	}
	_, err = w.Write(data)
	return err
}

// WriteTable renders rows with the first row as header
func WriteTable(w io.Writer, rows [][]string) error {
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render table")
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// UnsupportedFormat reports a format outside supported
func UnsupportedFormat(format string, supported ...string) error {
	return errors.WithHintf(
		errors.NewInvalidInputError("unsupported format: %s", format),
		"supported: %v", supported)
}

// Truncate shortens s to max runes, marking the cut with "..."
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
