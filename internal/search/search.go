// Package search runs the cross-validated hyperparameter search and refits
// the winning configuration.
package search

import (
	"log/slog"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/config"
	"github.com/thalesfsp/tune/internal/cv"
	"github.com/thalesfsp/tune/internal/dataset"
	apperrors "github.com/thalesfsp/tune/internal/errors"
	"github.com/thalesfsp/tune/internal/leaderboard"
	"github.com/thalesfsp/tune/internal/model"
)

// Hyperparameter names of the default random forest space.
const (
	MaxDepth              = "max_depth"
	MinSamplesLeaf        = "min_samples_leaf"
	MinWeightFractionLeaf = "min_weight_fraction_leaf"
)

// maxMinSamplesLeaf is the upper min_samples_leaf bound of DefaultSpace.
const maxMinSamplesLeaf = 50

// DefaultSpace returns the random forest space searched on large tables.
func DefaultSpace() (*tune.SearchSpace, error) {
	return spaceWithLeafBound(maxMinSamplesLeaf)
}

// DefaultSpaceFor returns DefaultSpace with the min_samples_leaf bound
// narrowed to a tenth of the training rows of one fold, so small tables are
// not searched with forests that can only grow a single leaf.
func DefaultSpaceFor(rows, folds int) (*tune.SearchSpace, error) {
	train := rows
	if folds > 1 {
		train = rows * (folds - 1) / folds
	}

	return spaceWithLeafBound(min(maxMinSamplesLeaf, max(1, train/10)))
}

func spaceWithLeafBound(leaf int) (*tune.SearchSpace, error) {
	return tune.NewSearchSpace(
		tune.Integer(MaxDepth, tune.Bounds[int]{Min: 5, Max: 15}),
		tune.Integer(MinSamplesLeaf, tune.Bounds[int]{Min: 1, Max: leaf}),
		tune.Real(MinWeightFractionLeaf, tune.Bounds[float64]{Min: 0, Max: 0.3}),
	)
}

// ForestFactory builds random forests from assignments over DefaultSpace.
// Every forest uses nEstimators trees and the same seed.
func ForestFactory(nEstimators int, seed int64) cv.ModelFactory {
	return func(hp tune.Assignment) (model.Classifier, error) {
		return model.NewRandomForest(
			model.WithEstimators(nEstimators),
			model.WithMaxDepth(hp.Int(MaxDepth)),
			model.WithMinSamplesLeaf(max(1, hp.Int(MinSamplesLeaf))),
			model.WithMinWeightFractionLeaf(hp.Float(MinWeightFractionLeaf)),
			model.WithSeed(seed),
		), nil
	}
}

// ScalerFactory returns a fresh StandardScaler.
func ScalerFactory() model.Preprocessor {
	return model.NewStandardScaler()
}

// Search evaluates Config.NRuns assignments and refits the best one.
type Search struct {
	Config config.Config

	// Space defaults to DefaultSpaceFor the modelling rows and folds.
	Space *tune.SearchSpace

	// NewModel defaults to ForestFactory(Config.NEstimators, Config.Seed).
	NewModel cv.ModelFactory

	// NewPreprocessor may be nil for no preprocessing.
	NewPreprocessor cv.PreprocessorFactory

	// Optimizer overrides the optimizer settings derived from Config.
	Optimizer *tune.OptimizerConfig

	Logger   *slog.Logger
	Progress chan<- tune.ProgressUpdate
}

// Result is the outcome of a search.
type Result struct {
	Leaderboard  *leaderboard.Leaderboard
	Best         leaderboard.Trial
	Model        model.Classifier
	Preprocessor model.Preprocessor
}

// Run searches on the modelling table. Settings are validated before the
// first trial; any trial failure aborts the search.
func (s *Search) Run(modelling *dataset.Table) (*Result, error) {
	if err := s.Config.Validate(); err != nil {
		return nil, err
	}

	if modelling == nil || modelling.Len() == 0 {
		return nil, apperrors.Configuration("modelling table is empty")
	}

	if !modelling.Labelled() {
		return nil, apperrors.Configuration("modelling table has no target column")
	}

	space := s.Space
	if space == nil {
		var err error
		if space, err = DefaultSpaceFor(modelling.Len(), s.Config.NFolds); err != nil {
			return nil, err
		}
	}

	newModel := s.NewModel
	if newModel == nil {
		newModel = ForestFactory(s.Config.NEstimators, s.Config.Seed)
	}

	optConfig := tune.DefaultOptimizerConfig()
	optConfig.InitialPoints = s.Config.InitialPoints
	optConfig.Seed = s.Config.Seed

	if s.Optimizer != nil {
		optConfig = *s.Optimizer
	}

	optimizer, err := tune.NewOptimizer(space, optConfig)
	if err != nil {
		return nil, err
	}

	logger := s.logger()

	runner := &cv.Runner{
		Partitioner: cv.StratifiedKFold{
			K:                 s.Config.NFolds,
			Shuffle:           s.Config.ShuffleFolds,
			Seed:              s.Config.Seed,
			AllowUnstratified: s.Config.AllowUnstratified,
			Logger:            logger,
		},
		NewModel:        newModel,
		NewPreprocessor: s.NewPreprocessor,
		Logger:          logger,
	}

	direction := s.Config.OptimisationDirection()
	board := leaderboard.New()

	var current leaderboard.Trial

	objective := func(i int, hp tune.Assignment) (float64, error) {
		foldMetrics, err := runner.Run(modelling, hp)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.GetCode(err), err, "trial %d", i)
		}

		averages, err := leaderboard.Average(foldMetrics)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.GetCode(err), err, "trial %d", i)
		}

		current = leaderboard.Trial{
			Hyperparameters: hp,
			FoldMetrics:     foldMetrics,
			Averages:        averages,
		}

		return direction.Objective(averages[s.Config.Metric]), nil
	}

	appendTrial := func(i int, _ tune.Observation) error {
		stored := board.Append(current)

		logger.Info("Trial finished",
			"trial", stored.Index,
			"of", s.Config.NRuns,
			"hyperparameters", stored.Hyperparameters,
			s.Config.Metric, stored.Averages[s.Config.Metric],
		)

		return nil
	}

	logger.Info("Starting hyperparameter search",
		"runs", s.Config.NRuns,
		"folds", s.Config.NFolds,
		"metric", s.Config.Metric,
		"direction", direction,
		"rows", modelling.Len(),
	)

	opts := []tune.RunOption{tune.WithAfterTell(appendTrial)}
	if s.Progress != nil {
		opts = append(opts, tune.WithProgress(s.Progress))
	}

	if _, err := tune.Minimize(optimizer, s.Config.NRuns, objective, opts...); err != nil {
		return nil, err
	}

	best, err := board.Best(s.Config.Metric, direction)
	if err != nil {
		return nil, err
	}

	logger.Info("Best trial selected",
		"trial", best.Index,
		"hyperparameters", best.Hyperparameters,
		s.Config.Metric, best.Averages[s.Config.Metric],
	)

	clf, pre, err := BuildFinal(modelling, best.Hyperparameters, newModel, s.NewPreprocessor)
	if err != nil {
		return nil, err
	}

	return &Result{
		Leaderboard:  board,
		Best:         best,
		Model:        clf,
		Preprocessor: pre,
	}, nil
}

// BuildFinal fits preprocessing on the whole table, then a model for hp on
// the transformed rows. newPreprocessor may be nil, in which case the
// returned preprocessor is nil too.
func BuildFinal(table *dataset.Table, hp tune.Assignment, newModel cv.ModelFactory, newPreprocessor cv.PreprocessorFactory) (model.Classifier, model.Preprocessor, error) {
	X := table.X

	var pre model.Preprocessor

	if newPreprocessor != nil {
		pre = newPreprocessor()

		if err := pre.Fit(X); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeTraining, err, "final model: fit preprocessing")
		}

		var err error
		if X, err = pre.Transform(X); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeTraining, err, "final model: transform")
		}
	}

	clf, err := newModel(hp.Clone())
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeTraining, err, "final model: build")
	}

	if err := clf.Fit(X, table.Y); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeTraining, err, "final model: fit")
	}

	return clf, pre, nil
}

func (s *Search) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return slog.Default()
}
