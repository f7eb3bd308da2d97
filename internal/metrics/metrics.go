// Package metrics scores binary predictions against the true labels.
package metrics

import (
	"errors"
	"fmt"
	"sort"

	apperrors "github.com/thalesfsp/tune/internal/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metric names produced by Evaluate.
const (
	Accuracy  = "acc"
	Precision = "prec"
	Recall    = "rec"
	F1        = "f1"
	AUC       = "auc"
)

// Names lists the metrics in reporting order.
var Names = []string{Accuracy, Precision, Recall, F1, AUC}

// ErrUndefinedMetric is returned when a metric has no defined value for the
// inputs, for example AUC with a single class present.
var ErrUndefinedMetric = errors.New("metric undefined for input")

// Scores maps metric name to value.
type Scores map[string]float64

// AverageName returns the leaderboard key for a metric's fold average.
func AverageName(metric string) string {
	return metric + "_avg"
}

// ValidMetricNames returns the averaged metric names a search can optimise.
func ValidMetricNames() []string {
	out := make([]string, len(Names))
	for i, name := range Names {
		out[i] = AverageName(name)
	}

	return out
}

// IsValidMetricName reports whether name is one of ValidMetricNames.
func IsValidMetricName(name string) bool {
	for _, valid := range ValidMetricNames() {
		if name == valid {
			return true
		}
	}

	return false
}

// Evaluate computes every metric in Names. Positive class is 1; proba holds
// [P(0), P(1)] per row. Any undefined metric fails the whole evaluation.
func Evaluate(yTrue, yPred []int, proba [][]float64) (Scores, error) {
	n := len(yTrue)
	if n == 0 {
		return nil, apperrors.Evaluation("no rows to evaluate")
	}

	if len(yPred) != n || len(proba) != n {
		return nil, apperrors.Evaluation("length mismatch: %d labels, %d predictions, %d probabilities", n, len(yPred), len(proba))
	}

	var tp, fp, tn, fn int

	for i := range yTrue {
		if !isLabel(yTrue[i]) || !isLabel(yPred[i]) {
			return nil, apperrors.Evaluation("row %d: labels must be 0 or 1", i)
		}

		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			tp++
		case yTrue[i] == 0 && yPred[i] == 1:
			fp++
		case yTrue[i] == 0 && yPred[i] == 0:
			tn++
		default:
			fn++
		}
	}

	if tp+fn == 0 || tn+fp == 0 {
		return nil, undefined("recall and auc need both classes in the true labels")
	}

	if tp+fp == 0 {
		return nil, undefined("precision needs at least one positive prediction")
	}

	auc, err := rocAUC(yTrue, proba)
	if err != nil {
		return nil, err
	}

	return Scores{
		Accuracy:  float64(tp+tn) / float64(n),
		Precision: float64(tp) / float64(tp+fp),
		Recall:    float64(tp) / float64(tp+fn),
		F1:        float64(2*tp) / float64(2*tp+fp+fn),
		AUC:       auc,
	}, nil
}

// rocAUC integrates the ROC curve of the positive-class scores.
func rocAUC(yTrue []int, proba [][]float64) (float64, error) {
	type scored struct {
		score float64
		class bool
	}

	rows := make([]scored, len(yTrue))
	for i := range yTrue {
		if len(proba[i]) != 2 {
			return 0, apperrors.Evaluation("row %d: expected 2 class probabilities, got %d", i, len(proba[i]))
		}

		rows[i] = scored{score: proba[i][1], class: yTrue[i] == 1}
	}

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].score < rows[b].score })

	scores := make([]float64, len(rows))
	classes := make([]bool, len(rows))

	for i, r := range rows {
		scores[i], classes[i] = r.score, r.class
	}

	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)

	return integrate.Trapezoidal(fpr, tpr), nil
}

func undefined(msg string) error {
	return apperrors.Wrap(apperrors.CodeEvaluation, ErrUndefinedMetric, "%s", msg)
}

func isLabel(v int) bool {
	return v == 0 || v == 1
}

// Format renders scores in Names order, for logs.
func (s Scores) Format() string {
	out := ""

	for i, name := range Names {
		if i > 0 {
			out += " "
		}

		out += fmt.Sprintf("%s=%.4f", name, s[name])
	}

	return out
}
