// Package dataset holds the engineered feature table consumed by the search.
package dataset

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound is returned by Load and FromRecords when the named target
// column is missing from the header.
var ErrTargetNotFound = errors.New("column not found")

// Table is a numeric feature matrix with a binary target column. Rows of X
// and Y are aligned. Y is nil for unlabelled tables, such as rows scored by an
// exported model. A Table is treated as read-only once built.
type Table struct {
	Features []string
	X        [][]float64
	Y        []int
}

// New validates shape and labels and returns the table. A nil y builds an
// unlabelled table.
func New(features []string, x [][]float64, y []int) (*Table, error) {
	if y != nil && len(x) != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and target rows (%d) differ", len(x), len(y))
	}

	for i, row := range x {
		if len(row) != len(features) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(features))
		}
	}

	for i, label := range y {
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("row %d has target %d, expected 0 or 1", i, label)
		}
	}

	return &Table{Features: features, X: x, Y: y}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.X)
}

// Labelled reports whether the table carries a target column.
func (t *Table) Labelled() bool {
	return t.Y != nil
}

// Subset returns the rows at indices, in the given order. Row slices are
// shared with t and must not be modified.
func (t *Table) Subset(indices []int) *Table {
	x := make([][]float64, len(indices))

	var y []int
	if t.Labelled() {
		y = make([]int, len(indices))
	}

	for i, idx := range indices {
		x[i] = t.X[idx]

		if y != nil {
			y[i] = t.Y[idx]
		}
	}

	return &Table{Features: t.Features, X: x, Y: y}
}

// SplitModellingHoldout splits t into a modelling view of the first
// floor(n*fraction) rows and a holdout view of the remainder. The views are
// disjoint and together cover t.
func (t *Table) SplitModellingHoldout(fraction float64) (modelling, holdout *Table, err error) {
	if fraction <= 0 || fraction > 1 {
		return nil, nil, fmt.Errorf("modelling fraction must be in (0, 1], got %v", fraction)
	}

	cut := int(float64(t.Len()) * fraction)
	if cut == 0 {
		return nil, nil, fmt.Errorf("modelling fraction %v leaves no modelling rows out of %d", fraction, t.Len())
	}

	return t.Subset(rangeIndices(0, cut)), t.Subset(rangeIndices(cut, t.Len())), nil
}

// LabelCounts returns how often each label occurs.
func (t *Table) LabelCounts() map[int]int {
	counts := make(map[int]int)
	for _, label := range t.Y {
		counts[label]++
	}

	return counts
}

func rangeIndices(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}

	return out
}
