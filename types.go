package tune

import (
	"math/rand"

	"golang.org/x/exp/constraints"
)

// Optimization phases reported in ProgressUpdate.Phase.
const (
	PhaseInitialSampling = "InitialSampling"
	PhaseOptimization    = "Optimization"
)

// ProgressUpdate represents the current state of the optimization process.
type ProgressUpdate struct {
	// Phase indicates whether we're in initial sampling or optimization phase
	Phase string

	// CurrentIteration is the 1-based number of the iteration just told
	CurrentIteration int

	// TotalIterations is the total number of iterations to run
	TotalIterations int

	// CurrentParams holds the assignment that was just evaluated
	CurrentParams Assignment

	// CurrentBestParams holds the best assignment found so far
	CurrentBestParams Assignment

	// CurrentBestValue holds the lowest objective found so far
	CurrentBestValue float64

	// LastValue holds the objective of the last evaluation
	LastValue float64
}

// Bounds defines the valid range for a hyperparameter in the optimization process.
// Each hyperparameter must have a minimum and maximum value to define its search space.
//
// Type Parameter:
//   - T: The numeric type for this range (int or float64)
//
// Usage:
//
//	// Example 1: Tree depth from 5 to 15
//	depth := Bounds[int]{Min: 5, Max: 15}
//
//	// Example 2: Leaf weight fraction from 0 to 0.3
//	fraction := Bounds[float64]{Min: 0, Max: 0.3}
//
// Validation:
// - Min must be less than or equal to Max
// - The range is inclusive of both Min and Max values
type Bounds[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive) for this hyperparameter.
	Min T

	// Max defines the maximum allowed value (inclusive) for this hyperparameter.
	Max T
}

// Assignment maps dimension names to values. Integer dimensions always hold
// integral values.
type Assignment map[string]float64

// Int returns the named value as an int.
func (a Assignment) Int(name string) int {
	return int(a[name])
}

// Float returns the named value.
func (a Assignment) Float(name string) float64 {
	return a[name]
}

// Clone returns a deep copy of the assignment.
func (a Assignment) Clone() Assignment {
	if a == nil {
		return nil
	}

	c := make(Assignment, len(a))
	for k, v := range a {
		c[k] = v
	}

	return c
}

// Observation is one (assignment, objective) pair told to the optimizer.
type Observation struct {
	Assignment Assignment
	Objective  float64

	point []float64
}

// AcquisitionFunc defines the signature for acquisition functions used in the
// Bayesian optimization process. These functions help decide which points in the
// parameter space should be evaluated next.
//
// Parameters:
// - mean: The predicted objective at a point (lower is better)
// - variance: The predicted variance/uncertainty at that point
// - params: Additional parameters needed by specific acquisition functions
//
// Returns:
// - float64: Acquisition value (lower values indicate more promising points)
//
// Built-in acquisition functions:
// - UCB: confidence bound on the minimised objective
// - ProbabilityOfImprovement: Probability of finding better value
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from posterior
//
// Implementation notes for custom acquisition functions:
// - Should handle edge cases (zero variance, extreme means)
// - Should be deterministic given params.RandomState
// - Should return lower values for more promising points
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by different acquisition functions to make decisions
// about which points to sample next in the optimization process.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off in UCB.
	// - Higher values (e.g., 3.0 or 5.0) encourage more exploration of uncertain areas
	// - Lower values (e.g., 0.1 or 0.5) focus more on exploiting known good areas
	Beta float64

	// Xi (Greek letter ξ) is the minimum improvement over BestSoFar that PI and
	// EI reward. Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the lowest objective observed so far. It is set by the
	// optimizer before each proposal.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// When nil, the optimizer's own seeded generator is used.
	RandomState *rand.Rand
}

// OptimizerConfig holds all configuration parameters for the Bayesian optimizer.
//
// Usage example:
//
//	config := OptimizerConfig{
//	    // Start with 5 random samples to build initial model
//	    InitialPoints: 5,
//
//	    // Consider 200 random candidates per proposal
//	    NumCandidates: 200,
//
//	    // Use Expected Improvement strategy
//	    AcquisitionFunc: ExpectedImprovement,
//	    AcqParams:       AcquisitionParams{Xi: 0.01},
//
//	    // Reproducible proposals
//	    Seed: 42,
//	}
type OptimizerConfig struct {
	// InitialPoints determines how many points are drawn at random before the
	// surrogate is consulted.
	// Recommended range: 5-20
	InitialPoints int

	// NumCandidates determines how many random candidates are scored by the
	// acquisition function for each surrogate-driven proposal.
	// Recommended range: 50-500
	NumCandidates int

	// AcquisitionFunc determines the strategy for selecting the next point to
	// evaluate. See AcquisitionFunc type for built-in options.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// Seed makes Ask reproducible for a fixed call sequence.
	Seed int64

	// LengthScale is the RBF kernel width over inputs normalised to [0, 1].
	LengthScale float64

	// Noise is added to the kernel diagonal.
	Noise float64
}
