// Package leaderboard records one trial per evaluated assignment and picks
// the best one.
package leaderboard

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/montanaflynn/stats"
	"golang.org/x/exp/maps"

	"github.com/thalesfsp/tune"
	apperrors "github.com/thalesfsp/tune/internal/errors"
	"github.com/thalesfsp/tune/internal/metrics"
)

//////
// Direction.
//////

// Direction says whether larger or smaller metric values are better.
type Direction string

// Directions.
const (
	Maximize Direction = "max"
	Minimize Direction = "min"
)

// ParseDirection accepts "max" or "min".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Maximize, Minimize:
		return d, nil
	default:
		return "", apperrors.Configuration("max_or_min_optimisation_metric must be max or min, got %q", s)
	}
}

// Objective maps a metric value to the value the optimizer minimises.
func (d Direction) Objective(value float64) float64 {
	if d == Maximize {
		return -value
	}

	return value
}

// better reports whether a strictly beats b.
func (d Direction) better(a, b float64) bool {
	if d == Maximize {
		return a > b
	}

	return a < b
}

//////
// Trial.
//////

// Trial is one evaluated assignment.
type Trial struct {
	Index           int                  `json:"index"`
	Hyperparameters tune.Assignment      `json:"hyperparameters"`
	FoldMetrics     map[string][]float64 `json:"fold_metrics"`
	Averages        map[string]float64   `json:"averages"`
}

func (t Trial) clone() Trial {
	out := Trial{
		Index:           t.Index,
		Hyperparameters: t.Hyperparameters.Clone(),
		FoldMetrics:     make(map[string][]float64, len(t.FoldMetrics)),
		Averages:        maps.Clone(t.Averages),
	}

	for k, v := range t.FoldMetrics {
		out.FoldMetrics[k] = slices.Clone(v)
	}

	return out
}

// Average returns the arithmetic mean of every metric, keyed "<metric>_avg".
func Average(foldMetrics map[string][]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(foldMetrics))

	for name, values := range foldMetrics {
		mean, err := stats.Mean(values)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeEvaluation, err, "average %s", name)
		}

		out[metrics.AverageName(name)] = mean
	}

	return out, nil
}

//////
// Leaderboard.
//////

// Leaderboard is an append-only list of trials in evaluation order. Trials
// are copied on the way in and on the way out.
type Leaderboard struct {
	mu     sync.RWMutex
	trials []Trial
}

// New returns an empty leaderboard.
func New() *Leaderboard {
	return &Leaderboard{}
}

// Append stores a copy of t with Index set to its position and returns it.
func (l *Leaderboard) Append(t Trial) Trial {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := t.clone()
	stored.Index = len(l.trials)
	l.trials = append(l.trials, stored)

	return stored.clone()
}

// Len returns the number of trials.
func (l *Leaderboard) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.trials)
}

// At returns a copy of trial i.
func (l *Leaderboard) At(i int) (Trial, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i < 0 || i >= len(l.trials) {
		return Trial{}, fmt.Errorf("trial %d out of range [0, %d)", i, len(l.trials))
	}

	return l.trials[i].clone(), nil
}

// Trials returns copies of every trial in order.
func (l *Leaderboard) Trials() []Trial {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Trial, len(l.trials))
	for i, t := range l.trials {
		out[i] = t.clone()
	}

	return out
}

// Best returns the trial with the best average for metric. The earliest trial
// wins ties.
func (l *Leaderboard) Best(metric string, d Direction) (Trial, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.trials) == 0 {
		return Trial{}, apperrors.Configuration("leaderboard is empty")
	}

	best := -1

	for i, t := range l.trials {
		v, ok := t.Averages[metric]
		if !ok {
			return Trial{}, apperrors.Configuration("trial %d has no metric %q", i, metric)
		}

		if best < 0 || d.better(v, l.trials[best].Averages[metric]) {
			best = i
		}
	}

	return l.trials[best].clone(), nil
}

// Markdown renders the leaderboard as a table with one row per trial. The
// optimised metric is marked with an asterisk in the header.
func (l *Leaderboard) Markdown(metric string) string {
	trials := l.Trials()

	var params, averages []string

	for _, t := range trials {
		for k := range t.Hyperparameters {
			if !slices.Contains(params, k) {
				params = append(params, k)
			}
		}

		for k := range t.Averages {
			if !slices.Contains(averages, k) {
				averages = append(averages, k)
			}
		}
	}

	slices.Sort(params)
	slices.Sort(averages)

	var b strings.Builder

	header := append([]string{"trial"}, params...)
	for _, name := range averages {
		if name == metric {
			name += " *"
		}

		header = append(header, name)
	}

	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")

	for _, t := range trials {
		row := []string{fmt.Sprintf("%d", t.Index)}

		for _, k := range params {
			row = append(row, fmt.Sprintf("%g", t.Hyperparameters[k]))
		}

		for _, k := range averages {
			row = append(row, fmt.Sprintf("%.4f", t.Averages[k]))
		}

		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	return b.String()
}

// MetricNames returns the averaged metric names present in t, sorted.
func (t Trial) MetricNames() []string {
	names := make([]string, 0, len(t.Averages))
	for name := range t.Averages {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
