package nodes

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// CSV operations on the selected column.
const (
	csvOpNone    = "None"
	csvOpSum     = "Sum"
	csvOpAverage = "Average"
	csvOpMin     = "Min"
	csvOpMax     = "Max"
	csvOpCount   = "Count"
)

// CSVTable parses "CSV Text" and outputs the (optionally filtered) table,
// one selected column, and a summary statistic over that column.
func CSVTable() nodeflow.NodeSpec {
	return nodeflow.NodeSpec{
		Title:  "CSV Table",
		Inputs: []nodeflow.PortSpec{{Name: "CSV Text", Kind: nodeflow.KindString}},
		Outputs: []nodeflow.PortSpec{
			{Name: "Table Data", Kind: nodeflow.KindString},
			{Name: "Selected Column", Kind: nodeflow.KindString},
			{Name: "Summary Stats", Kind: nodeflow.KindString},
		},
		Properties: map[string]any{
			"has_header":    true,
			"delimiter":     ",",
			"column_select": "0",
			"filter_value":  "",
			"operation":     csvOpNone,
		},
		Body: nodeflow.BodyFunc(csvTable),
	}
}

func csvTable(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
	props := ec.Props()
	headers, rows, err := parseCSV(ec.InputString("CSV Text"), props.String("delimiter", ","), props.Bool("has_header", true))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		ec.SetCompleteStatus("No CSV data to process")
		return nodeflow.Outputs{"Table Data": "", "Selected Column": "", "Summary Stats": ""}, nil
	}
	status := fmt.Sprintf("Processed CSV: %d rows, %d columns", len(rows), len(headers))

	col, warning := selectColumn(headers, props.String("column_select", "0"))
	if warning != "" {
		status = warning
	}
	column := make([]string, len(rows))
	for i, row := range rows {
		if col < len(row) {
			column[i] = row[col]
		}
	}

	filtered := rows
	if pattern := props.String("filter_value", ""); pattern != "" {
		re, err := compilePattern(pattern, regexFlags{})
		if err != nil {
			return nil, err
		}
		filtered = nil
		for _, row := range rows {
			for _, v := range row {
				if re.MatchString(v) {
					filtered = append(filtered, row)
					break
				}
			}
		}
		status = fmt.Sprintf("Filter applied: %d of %d rows match", len(filtered), len(rows))
	}

	table := make([]string, 0, len(filtered)+1)
	table = append(table, strings.Join(headers, ","))
	for _, row := range filtered {
		table = append(table, strings.Join(row, ","))
	}

	ec.SetCompleteStatus(status)
	return nodeflow.Outputs{
		"Table Data":      strings.Join(table, "\n"),
		"Selected Column": strings.Join(append([]string{headers[col]}, column...), "\n"),
		"Summary Stats":   columnStats(props.String("operation", csvOpNone), headers[col], column),
	}, nil
}

// parseCSV splits text into headers and data rows. Without a header row
// the columns are named "Column 0", "Column 1", ...
func parseCSV(text, delimiter string, hasHeader bool) ([]string, [][]string, error) {
	if text == "" {
		return nil, nil, nil
	}
	r := csv.NewReader(strings.NewReader(text))
	if delimiter != "" {
		comma, _ := utf8.DecodeRuneInString(delimiter)
		r.Comma = comma
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse csv: %w", err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	if hasHeader {
		return records[0], records[1:], nil
	}
	headers := make([]string, len(records[0]))
	for i := range headers {
		headers[i] = fmt.Sprintf("Column %d", i)
	}
	return headers, records, nil
}

// selectColumn resolves a column index or header name. Unknown columns
// fall back to the first one with a warning.
func selectColumn(headers []string, sel string) (int, string) {
	if idx, err := strconv.Atoi(strings.TrimSpace(sel)); err == nil {
		if idx < 0 || idx >= len(headers) {
			return 0, fmt.Sprintf("Column index %d out of range", idx)
		}
		return idx, ""
	}
	for i, h := range headers {
		if h == sel {
			return i, ""
		}
	}
	return 0, fmt.Sprintf("Column '%s' not found, using first column", sel)
}

// columnStats applies op to the numeric values of a column. Non-numeric
// cells are skipped.
func columnStats(op, name string, values []string) string {
	if op == "" || op == csvOpNone {
		return ""
	}
	var nums []float64
	for _, v := range values {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return fmt.Sprintf("No numeric values found in column '%s'", name)
	}

	var sum float64
	lo, hi := nums[0], nums[0]
	for _, f := range nums {
		sum += f
		lo = min(lo, f)
		hi = max(hi, f)
	}
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	switch op {
	case csvOpSum:
		return fmt.Sprintf("Sum of %s: %s", name, format(sum))
	case csvOpAverage:
		return fmt.Sprintf("Average of %s: %s", name, format(sum/float64(len(nums))))
	case csvOpMin:
		return fmt.Sprintf("Minimum of %s: %s", name, format(lo))
	case csvOpMax:
		return fmt.Sprintf("Maximum of %s: %s", name, format(hi))
	case csvOpCount:
		return fmt.Sprintf("Count of numeric values in %s: %d", name, len(nums))
	default:
		return fmt.Sprintf("Unknown operation %q", op)
	}
}
