package dataset

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Load reads a feature table from a CSV or XLSX file. The first row is the
// header; target names the label column and features the columns to keep, in
// order. An empty features list keeps every column except the target. An
// empty target loads an unlabelled table.
func Load(path, target string, features []string) (*Table, error) {
	var (
		rows [][]string
		err  error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}

	if err != nil {
		return nil, err
	}

	slog.Debug("Feature table read", "path", path, "rows", len(rows)-1)

	return FromRecords(rows, target, features)
}

// FromRecords converts a header row plus data rows into a Table.
func FromRecords(rows [][]string, target string, features []string) (*Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("feature table must have a header row and at least one data row")
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.TrimSpace(name)] = i
	}

	targetCol := -1
	if target != "" {
		col, ok := header[target]
		if !ok {
			return nil, fmt.Errorf("target %q: %w", target, ErrTargetNotFound)
		}

		targetCol = col
	}

	if len(features) == 0 {
		for _, name := range rows[0] {
			if name = strings.TrimSpace(name); name != target {
				features = append(features, name)
			}
		}
	}

	cols := make([]int, len(features))
	for i, name := range features {
		col, ok := header[name]
		if !ok {
			return nil, fmt.Errorf("feature column %q not found", name)
		}

		cols[i] = col
	}

	x := make([][]float64, 0, len(rows)-1)

	var y []int
	if targetCol >= 0 {
		y = make([]int, 0, len(rows)-1)
	}

	for r, row := range rows[1:] {
		line := r + 2

		values := make([]float64, len(cols))
		for i, col := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell(row, col)), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid value for %q: %w", line, features[i], err)
			}

			values[i] = v
		}

		x = append(x, values)

		if targetCol < 0 {
			continue
		}

		label, err := strconv.Atoi(strings.TrimSpace(cell(row, targetCol)))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid target %q: %w", line, cell(row, targetCol), err)
		}

		y = append(y, label)
	}

	return New(features, x, y)
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	return rows, nil
}

// readXLSX reads the first sheet of the workbook.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return rows, nil
}

// cell tolerates the ragged rows excelize returns for trailing empty cells.
func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}

	return row[col]
}
