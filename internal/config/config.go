// Package config holds the immutable settings of a search run.
package config

import (
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/thalesfsp/tune/internal/errors"
	"github.com/thalesfsp/tune/internal/leaderboard"
	"github.com/thalesfsp/tune/internal/metrics"
)

// EnvPrefix prefixes environment overrides, e.g. TUNE_N_FOLDS.
const EnvPrefix = "TUNE"

// Config is a validated run configuration. Values are copied, never shared;
// build a changed one with New.
type Config struct {
	NFolds    int    `mapstructure:"n_folds" json:"n_folds"`
	NRuns     int    `mapstructure:"n_hyperparameter_optimisation_runs" json:"n_hyperparameter_optimisation_runs"`
	Metric    string `mapstructure:"optimisation_metric" json:"optimisation_metric"`
	Direction string `mapstructure:"max_or_min_optimisation_metric" json:"max_or_min_optimisation_metric"`

	// ModellingFraction is the leading share of rows used for the search;
	// the rest is the holdout.
	ModellingFraction float64 `mapstructure:"modelling_fraction" json:"modelling_fraction"`
	Seed              int64   `mapstructure:"seed" json:"seed"`
	InitialPoints     int     `mapstructure:"n_initial_points" json:"n_initial_points"`
	NEstimators       int     `mapstructure:"n_estimators" json:"n_estimators"`
	ShuffleFolds      bool    `mapstructure:"shuffle_folds" json:"shuffle_folds"`
	AllowUnstratified bool    `mapstructure:"allow_unstratified" json:"allow_unstratified"`

	Target   string   `mapstructure:"target" json:"target"`
	Features []string `mapstructure:"features" json:"features,omitempty"`

	Tracking TrackingConfig `mapstructure:"tracking" json:"-"`
	Server   ServerConfig   `mapstructure:"server" json:"-"`
}

// TrackingConfig selects the experiment store. An empty DSN disables
// tracking.
type TrackingConfig struct {
	DSN        string `mapstructure:"dsn"`
	Experiment string `mapstructure:"experiment"`
}

// ServerConfig holds prediction server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Option changes a copy of a Config inside New.
type Option func(*Config)

// Default returns the stock configuration: 3 optimisation runs over 5 folds
// maximising mean accuracy, with an 80/20 modelling/holdout split.
func Default() Config {
	return Config{
		NFolds:            5,
		NRuns:             3,
		Metric:            "acc_avg",
		Direction:         string(leaderboard.Maximize),
		ModellingFraction: 0.8,
		Seed:              42,
		InitialPoints:     5,
		NEstimators:       100,
		Target:            "target",
		Tracking:          TrackingConfig{Experiment: "default"},
		Server:            ServerConfig{Addr: ":8080"},
	}
}

// New applies opts to a copy of base and validates the result.
func New(base Config, opts ...Option) (Config, error) {
	c := base
	c.Features = append([]string(nil), base.Features...)

	for _, opt := range opts {
		opt(&c)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// WithFolds sets n_folds.
func WithFolds(n int) Option {
	return func(c *Config) { c.NFolds = n }
}

// WithRuns sets n_hyperparameter_optimisation_runs.
func WithRuns(n int) Option {
	return func(c *Config) { c.NRuns = n }
}

// WithMetric sets the optimised metric and its direction.
func WithMetric(metric, direction string) Option {
	return func(c *Config) {
		c.Metric = metric
		c.Direction = direction
	}
}

// WithSeed sets the seed shared by the optimizer, folds and model.
func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithTarget sets the label column and, optionally, the feature columns.
func WithTarget(target string, features ...string) Option {
	return func(c *Config) {
		c.Target = target
		c.Features = features
	}
}

// Validate checks every setting. It is called by New and Load, and again by
// the search before its first trial.
func (c Config) Validate() error {
	if c.NFolds < 2 {
		return apperrors.Configuration("n_folds must be >= 2, got %d", c.NFolds)
	}

	if c.NRuns < 1 {
		return apperrors.Configuration("n_hyperparameter_optimisation_runs must be >= 1, got %d", c.NRuns)
	}

	if !metrics.IsValidMetricName(c.Metric) {
		return apperrors.Configuration("optimisation_metric must be one of %s, got %q",
			strings.Join(metrics.ValidMetricNames(), ", "), c.Metric)
	}

	if _, err := leaderboard.ParseDirection(c.Direction); err != nil {
		return err
	}

	if c.ModellingFraction <= 0 || c.ModellingFraction > 1 {
		return apperrors.Configuration("modelling_fraction must be in (0, 1], got %v", c.ModellingFraction)
	}

	if c.InitialPoints < 1 {
		return apperrors.Configuration("n_initial_points must be >= 1, got %d", c.InitialPoints)
	}

	if c.NEstimators < 1 {
		return apperrors.Configuration("n_estimators must be >= 1, got %d", c.NEstimators)
	}

	if c.Target == "" {
		return apperrors.Configuration("target column is required")
	}

	return nil
}

// OptimisationDirection returns the parsed direction. Call on a validated
// Config.
func (c Config) OptimisationDirection() leaderboard.Direction {
	d, _ := leaderboard.ParseDirection(c.Direction)

	return d
}

// Load builds a Config from v, layering config file and TUNE_ environment
// values over Default.
func Load(v *viper.Viper) (Config, error) {
	d := Default()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("n_folds", d.NFolds)
	v.SetDefault("n_hyperparameter_optimisation_runs", d.NRuns)
	v.SetDefault("optimisation_metric", d.Metric)
	v.SetDefault("max_or_min_optimisation_metric", d.Direction)
	v.SetDefault("modelling_fraction", d.ModellingFraction)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("n_initial_points", d.InitialPoints)
	v.SetDefault("n_estimators", d.NEstimators)
	v.SetDefault("shuffle_folds", d.ShuffleFolds)
	v.SetDefault("allow_unstratified", d.AllowUnstratified)
	v.SetDefault("target", d.Target)
	v.SetDefault("features", []string{})
	v.SetDefault("tracking.dsn", d.Tracking.DSN)
	v.SetDefault("tracking.experiment", d.Tracking.Experiment)
	v.SetDefault("server.addr", d.Server.Addr)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, apperrors.Wrap(apperrors.CodeConfiguration, err, "failed to decode configuration")
	}

	return New(c)
}
