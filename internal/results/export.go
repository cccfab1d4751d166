package results

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

// WriteXLSX writes a workbook with a summary sheet, a metadata sheet and one sheet
// per category listing every scalar measurement. Arrays are reported by length.
func (r *Record) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if err := writeRows(f, summarySheet, r.summaryRows()); err != nil {
		return err
	}

	if _, err := f.NewSheet("Metadata"); err != nil {
		return err
	}
	meta := [][]any{{"key", "value"}}
	for _, kv := range flatten("", r.Metadata()) {
		meta = append(meta, []any{kv.path, kv.value})
	}
	if err := writeRows(f, "Metadata", meta); err != nil {
		return err
	}

	for _, cat := range r.Categories() {
		name := sheetName(cat)
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
		rows := [][]any{{"method", "channel", "measurement", "value"}}
		for _, key := range r.Keys(cat) {
			res, ok := r.Result(cat, key)
			if !ok {
				continue
			}
			for _, channel := range sortedKeys(res.Measurements) {
				for _, kv := range flatten("", res.Measurements[channel]) {
					rows = append(rows, []any{key, channel, kv.path, kv.value})
				}
			}
		}
		if err := writeRows(f, name, rows); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func (r *Record) summaryRows() [][]any {
	rows := [][]any{{"category", "method", "status", "failure_kind", "failure_message"}}
	for _, m := range r.Summary().Methods {
		kind, msg := "", ""
		if m.Failure != nil {
			kind, msg = m.Failure.Kind, m.Failure.Message
		}
		rows = append(rows, []any{m.Category, m.Key, m.Status, kind, msg})
	}
	return rows
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// sheetName trims a category to Excel's 31-character sheet name limit.
func sheetName(cat string) string {
	if len(cat) > 31 {
		return cat[:31]
	}
	return cat
}

type pathValue struct {
	path  string
	value any
}

// flatten walks decoded JSON and returns scalar leaves with dotted paths.
func flatten(prefix string, v any) []pathValue {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}

	switch x := v.(type) {
	case map[string]any:
		var out []pathValue
		for _, k := range sortedKeys(x) {
			out = append(out, flatten(join(k), x[k])...)
		}
		return out
	case []any:
		return []pathValue{{path: join("length"), value: len(x)}}
	case nil:
		return []pathValue{{path: leaf(prefix), value: ""}}
	default:
		return []pathValue{{path: leaf(prefix), value: x}}
	}
}

func leaf(path string) string {
	if path == "" {
		return "value"
	}
	return path
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Query applies a JSONPath expression to an exported record.
func Query(data []byte, expression string) ([]any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("JSONPath expression is required")
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	x, err := jp.ParseString(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression: %w", err)
	}
	return slices.Clip(x.Get(doc)), nil
}
