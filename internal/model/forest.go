package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// RandomForest is a bagged ensemble of CART trees. Trees are grown in
// parallel; each tree draws from its own seeded source so results do not
// depend on scheduling.
type RandomForest struct {
	NEstimators           int
	MaxDepth              int
	MinSamplesLeaf        int
	MinWeightFractionLeaf float64
	// MaxFeatures is the number of features tried per split; 0 means sqrt(p).
	MaxFeatures int
	Seed        int64

	trees       []*decisionTree
	importances []float64
	nFeatures   int
}

// ForestOption configures a RandomForest.
type ForestOption func(*RandomForest)

// WithEstimators sets the number of trees.
func WithEstimators(n int) ForestOption {
	return func(f *RandomForest) { f.NEstimators = n }
}

// WithMaxDepth limits tree depth. Zero means unlimited.
func WithMaxDepth(d int) ForestOption {
	return func(f *RandomForest) { f.MaxDepth = d }
}

// WithMinSamplesLeaf sets the minimum number of rows in a leaf.
func WithMinSamplesLeaf(n int) ForestOption {
	return func(f *RandomForest) { f.MinSamplesLeaf = n }
}

// WithMinWeightFractionLeaf sets the minimum fraction of the training rows
// that must reach a leaf.
func WithMinWeightFractionLeaf(frac float64) ForestOption {
	return func(f *RandomForest) { f.MinWeightFractionLeaf = frac }
}

// WithMaxFeatures sets the number of features considered per split.
func WithMaxFeatures(n int) ForestOption {
	return func(f *RandomForest) { f.MaxFeatures = n }
}

// WithSeed sets the seed for bootstrapping and feature sampling.
func WithSeed(seed int64) ForestOption {
	return func(f *RandomForest) { f.Seed = seed }
}

// NewRandomForest returns an unfitted forest with 100 trees, unlimited depth
// and one-row leaves unless overridden.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	f := &RandomForest{
		NEstimators:    100,
		MinSamplesLeaf: 1,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Kind implements Persistable.
func (f *RandomForest) Kind() string { return KindRandomForest }

// Fit grows NEstimators trees on bootstrap samples of X.
func (f *RandomForest) Fit(X [][]float64, y []int) error {
	p, err := checkXY(X, y)
	if err != nil {
		return err
	}

	if f.NEstimators < 1 {
		return fmt.Errorf("n_estimators must be >= 1, got %d", f.NEstimators)
	}

	if f.MinSamplesLeaf < 1 {
		return fmt.Errorf("min_samples_leaf must be >= 1, got %d", f.MinSamplesLeaf)
	}

	if f.MinWeightFractionLeaf < 0 || f.MinWeightFractionLeaf > 0.5 {
		return fmt.Errorf("min_weight_fraction_leaf must be in [0, 0.5], got %v", f.MinWeightFractionLeaf)
	}

	n := len(X)

	params := treeParams{
		maxDepth:    f.MaxDepth,
		minLeaf:     f.MinSamplesLeaf,
		maxFeatures: f.MaxFeatures,
	}

	if byWeight := int(math.Ceil(f.MinWeightFractionLeaf * float64(n))); byWeight > params.minLeaf {
		params.minLeaf = byWeight
	}

	if params.maxFeatures <= 0 {
		params.maxFeatures = max(1, int(math.Sqrt(float64(p))))
	}

	trees := make([]*decisionTree, f.NEstimators)

	workers := pool.New().WithErrors().WithMaxGoroutines(runtime.GOMAXPROCS(0))

	for i := range trees {
		workers.Go(func() error {
			rng := rand.New(rand.NewSource(f.Seed + int64(i)))

			rows := make([]int, n)
			for j := range rows {
				rows[j] = rng.Intn(n)
			}

			trees[i] = growTree(X, y, rows, params, rng)

			return nil
		})
	}

	if err := workers.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = p
	f.importances = averageImportances(trees, p)

	return nil
}

// PredictProba returns the mean of the per-tree leaf probabilities.
func (f *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	if err := f.checkFitted(X); err != nil {
		return nil, err
	}

	out := make([][]float64, len(X))

	for i, row := range X {
		var sum float64
		for _, t := range f.trees {
			sum += t.proba(row)
		}

		p1 := sum / float64(len(f.trees))
		out[i] = []float64{1 - p1, p1}
	}

	return out, nil
}

// Predict returns 1 where P(1) exceeds one half.
func (f *RandomForest) Predict(X [][]float64) ([]int, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(proba))
	for i, p := range proba {
		if p[1] > 0.5 {
			out[i] = 1
		}
	}

	return out, nil
}

// FeatureImportances returns the normalised mean impurity decrease per
// feature, or nil before Fit.
func (f *RandomForest) FeatureImportances() []float64 {
	if f.importances == nil {
		return nil
	}

	out := make([]float64, len(f.importances))
	copy(out, f.importances)

	return out
}

func (f *RandomForest) checkFitted(X [][]float64) error {
	if len(f.trees) == 0 {
		return fmt.Errorf("random forest is not fitted")
	}

	for i, row := range X {
		if len(row) != f.nFeatures {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), f.nFeatures)
		}
	}

	return nil
}

func averageImportances(trees []*decisionTree, p int) []float64 {
	out := make([]float64, p)

	for _, t := range trees {
		var total float64
		for _, v := range t.Importances {
			total += v
		}

		if total == 0 {
			continue
		}

		for j, v := range t.Importances {
			out[j] += v / total
		}
	}

	var total float64
	for _, v := range out {
		total += v
	}

	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}

	return out
}

//////
// Serialization.
//////

type forestState struct {
	NEstimators           int
	MaxDepth              int
	MinSamplesLeaf        int
	MinWeightFractionLeaf float64
	MaxFeatures           int
	Seed                  int64
	NFeatures             int
	Trees                 []*decisionTree
	Importances           []float64
}

// MarshalBinary encodes the fitted forest with gob.
func (f *RandomForest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	state := forestState{
		NEstimators:           f.NEstimators,
		MaxDepth:              f.MaxDepth,
		MinSamplesLeaf:        f.MinSamplesLeaf,
		MinWeightFractionLeaf: f.MinWeightFractionLeaf,
		MaxFeatures:           f.MaxFeatures,
		Seed:                  f.Seed,
		NFeatures:             f.nFeatures,
		Trees:                 f.trees,
		Importances:           f.importances,
	}

	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("encode random forest: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary restores a forest encoded by MarshalBinary.
func (f *RandomForest) UnmarshalBinary(data []byte) error {
	var state forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("decode random forest: %w", err)
	}

	*f = RandomForest{
		NEstimators:           state.NEstimators,
		MaxDepth:              state.MaxDepth,
		MinSamplesLeaf:        state.MinSamplesLeaf,
		MinWeightFractionLeaf: state.MinWeightFractionLeaf,
		MaxFeatures:           state.MaxFeatures,
		Seed:                  state.Seed,
		trees:                 state.Trees,
		importances:           state.Importances,
		nFeatures:             state.NFeatures,
	}

	return nil
}
