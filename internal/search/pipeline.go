package search

import (
	"context"
	"log/slog"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/thalesfsp/tune/internal/artifact"
	"github.com/thalesfsp/tune/internal/dataset"
	apperrors "github.com/thalesfsp/tune/internal/errors"
	"github.com/thalesfsp/tune/internal/metrics"
	"github.com/thalesfsp/tune/internal/model"
	"github.com/thalesfsp/tune/internal/tracking"
)

// Tracker stores finished runs.
type Tracker interface {
	LogRun(ctx context.Context, run tracking.Run) (uuid.UUID, error)
}

// Importance is one feature's weight in the final model.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Pipeline splits a feature table into modelling and holdout rows, searches
// on the modelling rows, then scores the refit model on the holdout.
type Pipeline struct {
	Search *Search

	// ExportPath, when set, receives the artifact bundle.
	ExportPath string

	// Tracker, when set, records the run.
	Tracker Tracker

	Logger *slog.Logger
}

// Report is the outcome of Pipeline.Fit.
type Report struct {
	*Result

	// Artifact is set when the pipeline exported one.
	Artifact    *artifact.Bundle
	Holdout     metrics.Scores
	Importances []Importance
	RunID       uuid.UUID
}

// Fit runs the whole pipeline on table.
func (p *Pipeline) Fit(ctx context.Context, table *dataset.Table) (*Report, error) {
	logger := p.logger()
	cfg := p.Search.Config

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	modelling, holdout, err := table.SplitModellingHoldout(cfg.ModellingFraction)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, err, "split modelling and holdout rows")
	}

	logger.Info("Split feature table", "modelling", modelling.Len(), "holdout", holdout.Len())

	result, err := p.Search.Run(modelling)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Result:      result,
		Importances: rankImportances(table.Features, result.Model.FeatureImportances()),
	}

	if holdout.Len() > 0 {
		if report.Holdout, err = evaluate(result, holdout); err != nil {
			return nil, err
		}

		logger.Info("Holdout evaluated", "scores", report.Holdout.Format())
	}

	if p.ExportPath != "" {
		bundle, err := artifact.New(cfg, table.Features, result.Best.Hyperparameters, result.Model, result.Preprocessor)
		if err != nil {
			return nil, err
		}

		if err := artifact.Save(p.ExportPath, bundle); err != nil {
			return nil, err
		}

		report.Artifact = bundle

		logger.Info("Artifact exported", "path", p.ExportPath)
	}

	if p.Tracker != nil {
		id, err := p.Tracker.LogRun(ctx, tracking.Run{
			Experiment:      cfg.Tracking.Experiment,
			Metric:          cfg.Metric,
			Direction:       cfg.Direction,
			Value:           result.Best.Averages[cfg.Metric],
			Hyperparameters: result.Best.Hyperparameters,
			Holdout:         report.Holdout,
			Leaderboard:     result.Leaderboard.Trials(),
		})
		if err != nil {
			return nil, err
		}

		report.RunID = id

		logger.Info("Run tracked", "run_id", id, "experiment", cfg.Tracking.Experiment)
	}

	return report, nil
}

func evaluate(result *Result, holdout *dataset.Table) (metrics.Scores, error) {
	pred, proba, err := predict(result.Model, result.Preprocessor, holdout.X)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.GetCode(err), err, "holdout")
	}

	scores, err := metrics.Evaluate(holdout.Y, pred, proba)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEvaluation, err, "holdout")
	}

	return scores, nil
}

// Scored holds the predictions of an exported model for a feature table.
type Scored struct {
	Predictions   []int
	Probabilities []float64

	// Scores is set when the table is labelled.
	Scores metrics.Scores
}

// Score runs an exported bundle over table. The table's features must match
// the bundle's, in order. Labelled tables are also evaluated.
func Score(bundle *artifact.Bundle, table *dataset.Table) (*Scored, error) {
	if !slices.Equal(bundle.Features, table.Features) {
		return nil, apperrors.Configuration("table features %v do not match the model's %v", table.Features, bundle.Features)
	}

	if table.Len() == 0 {
		return nil, apperrors.Configuration("nothing to score")
	}

	clf, err := bundle.Classifier()
	if err != nil {
		return nil, err
	}

	pre, err := bundle.Preprocessor()
	if err != nil {
		return nil, err
	}

	pred, proba, err := predict(clf, pre, table.X)
	if err != nil {
		return nil, err
	}

	scored := &Scored{
		Predictions:   pred,
		Probabilities: make([]float64, len(proba)),
	}

	for i, p := range proba {
		scored.Probabilities[i] = p[1]
	}

	if table.Labelled() {
		if scored.Scores, err = metrics.Evaluate(table.Y, pred, proba); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeEvaluation, err, "score")
		}
	}

	return scored, nil
}

func predict(clf model.Classifier, pre model.Preprocessor, X [][]float64) ([]int, [][]float64, error) {
	if pre != nil {
		var err error
		if X, err = pre.Transform(X); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeTraining, err, "transform")
		}
	}

	pred, err := clf.Predict(X)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeTraining, err, "predict")
	}

	proba, err := clf.PredictProba(X)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeTraining, err, "predict probabilities")
	}

	return pred, proba, nil
}

// rankImportances pairs weights with feature names, largest first.
func rankImportances(features []string, weights []float64) []Importance {
	out := make([]Importance, 0, len(weights))

	for i, w := range weights {
		name := ""
		if i < len(features) {
			name = features[i]
		}

		out = append(out, Importance{Feature: name, Weight: w})
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Weight > out[b].Weight })

	return out
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}

	return slog.Default()
}
