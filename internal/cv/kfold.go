// Package cv partitions a modelling table into folds and runs a leakage-free
// cross validation of one hyperparameter assignment.
package cv

import (
	"log/slog"
	"math/rand"
	"sort"

	apperrors "github.com/thalesfsp/tune/internal/errors"
)

// Fold holds row indices, both sorted ascending.
type Fold struct {
	Index      int
	Train      []int
	Validation []int
}

// Partitioner splits labelled rows into folds.
type Partitioner interface {
	Split(y []int) ([]Fold, error)
}

// StratifiedKFold assigns each class's rows to K contiguous chunks so every
// validation fold keeps the overall class proportions.
//
// Classes are taken in ascending label order. When a class does not divide
// evenly, its leftover rows go to the folds after the ones that received the
// previous class's leftovers, so fold sizes differ by at most one.
type StratifiedKFold struct {
	K int
	// Shuffle permutes each class's rows with Seed before chunking.
	Shuffle bool
	Seed    int64
	// AllowUnstratified falls back to plain K-fold when a class has fewer
	// than K rows instead of failing.
	AllowUnstratified bool
	Logger            *slog.Logger
}

// Split returns K folds over len(y) rows.
func (s StratifiedKFold) Split(y []int) ([]Fold, error) {
	if s.K < 2 {
		return nil, apperrors.Configuration("n_folds must be >= 2, got %d", s.K)
	}

	n := len(y)
	if s.K > n {
		return nil, apperrors.DataPartition("cannot split %d rows into %d folds", n, s.K)
	}

	var rng *rand.Rand
	if s.Shuffle {
		rng = rand.New(rand.NewSource(s.Seed))
	}

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}

	sort.Ints(labels)

	for _, label := range labels {
		if m := len(byClass[label]); m < s.K {
			if !s.AllowUnstratified {
				return nil, apperrors.DataPartition("class %d has %d rows, fewer than %d folds", label, m, s.K)
			}

			s.logger().Warn("Falling back to unstratified folds", "class", label, "rows", m, "folds", s.K)

			all := make([]int, n)
			for i := range all {
				all[i] = i
			}

			shuffle(rng, all)

			return buildFolds(n, assignChunks(all, s.K, 0, make([][]int, s.K))), nil
		}
	}

	validation := make([][]int, s.K)
	offset := 0

	for _, label := range labels {
		rows := byClass[label]
		shuffle(rng, rows)

		validation = assignChunks(rows, s.K, offset, validation)
		offset = (offset + len(rows)%s.K) % s.K
	}

	return buildFolds(n, validation), nil
}

func (s StratifiedKFold) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return slog.Default()
}

// assignChunks cuts rows into k contiguous chunks and appends chunk i to
// validation[i]. The len(rows)%k larger chunks go to folds offset,
// offset+1, ... modulo k.
func assignChunks(rows []int, k, offset int, validation [][]int) [][]int {
	base, extra := len(rows)/k, len(rows)%k
	start := 0

	for i := 0; i < k; i++ {
		size := base
		if (i-offset+k)%k < extra {
			size++
		}

		validation[i] = append(validation[i], rows[start:start+size]...)
		start += size
	}

	return validation
}

func buildFolds(n int, validation [][]int) []Fold {
	folds := make([]Fold, len(validation))

	for i, val := range validation {
		sort.Ints(val)

		inVal := make([]bool, n)
		for _, r := range val {
			inVal[r] = true
		}

		train := make([]int, 0, n-len(val))
		for r := 0; r < n; r++ {
			if !inVal[r] {
				train = append(train, r)
			}
		}

		folds[i] = Fold{Index: i, Train: train, Validation: val}
	}

	return folds
}

func shuffle(rng *rand.Rand, rows []int) {
	if rng == nil {
		return
	}

	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
}
