package cv

import (
	"log/slog"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/dataset"
	apperrors "github.com/thalesfsp/tune/internal/errors"
	"github.com/thalesfsp/tune/internal/metrics"
	"github.com/thalesfsp/tune/internal/model"
)

// ModelFactory returns a fresh, unfitted classifier for an assignment.
type ModelFactory func(hp tune.Assignment) (model.Classifier, error)

// PreprocessorFactory returns a fresh, unfitted preprocessor.
type PreprocessorFactory func() model.Preprocessor

// Runner cross validates one assignment. Each fold gets its own
// preprocessor, fitted on that fold's training rows only, and its own model.
type Runner struct {
	Partitioner Partitioner
	NewModel    ModelFactory
	// NewPreprocessor may be nil, in which case features are used as is.
	NewPreprocessor PreprocessorFactory
	Logger          *slog.Logger
}

// Run returns each metric's per-fold values in fold order. Any failure aborts
// the run and no partial metrics are returned.
func (r *Runner) Run(table *dataset.Table, hp tune.Assignment) (map[string][]float64, error) {
	if r.Partitioner == nil || r.NewModel == nil {
		return nil, apperrors.Configuration("runner needs a partitioner and a model factory")
	}

	folds, err := r.Partitioner.Split(table.Y)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(metrics.Names))

	for _, fold := range folds {
		scores, err := r.runFold(table, fold, hp)
		if err != nil {
			return nil, err
		}

		for _, name := range metrics.Names {
			out[name] = append(out[name], scores[name])
		}

		r.logger().Debug("Fold evaluated", "fold", fold.Index, "scores", scores.Format())
	}

	return out, nil
}

func (r *Runner) runFold(table *dataset.Table, fold Fold, hp tune.Assignment) (metrics.Scores, error) {
	train := table.Subset(fold.Train)
	val := table.Subset(fold.Validation)

	xTrain, xVal := train.X, val.X

	if r.NewPreprocessor != nil {
		pre := r.NewPreprocessor()

		if err := pre.Fit(xTrain); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeTraining, err, "fold %d: fit preprocessing", fold.Index)
		}

		var err error
		if xTrain, err = pre.Transform(xTrain); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeTraining, err, "fold %d: transform training rows", fold.Index)
		}

		if xVal, err = pre.Transform(xVal); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeTraining, err, "fold %d: transform validation rows", fold.Index)
		}
	}

	clf, err := r.NewModel(hp.Clone())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTraining, err, "fold %d: build model", fold.Index)
	}

	if err := clf.Fit(xTrain, train.Y); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTraining, err, "fold %d: fit model", fold.Index)
	}

	pred, err := clf.Predict(xVal)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTraining, err, "fold %d: predict", fold.Index)
	}

	proba, err := clf.PredictProba(xVal)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTraining, err, "fold %d: predict probabilities", fold.Index)
	}

	scores, err := metrics.Evaluate(val.Y, pred, proba)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEvaluation, err, "fold %d", fold.Index)
	}

	return scores, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}
