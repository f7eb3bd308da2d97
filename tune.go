package tune

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	apperrors "github.com/thalesfsp/tune/internal/errors"
)

//////
// Const, vars, types.
//////

// Ask/Tell ordering errors.
var (
	ErrPendingAsk         = errors.New("previous ask has not been told")
	ErrNoPendingAsk       = errors.New("tell without a pending ask")
	ErrAssignmentMismatch = errors.New("told assignment differs from the pending ask")
)

// Optimizer is a sequential ask/tell state machine. Its state is the ordered
// history of observations plus at most one pending ask; Ask reads the history
// and may draw from the seeded generator, Tell appends to it.
//
// The surrogate depends on the exact observation order, so every Tell must
// follow its Ask before the next Ask is issued. Both methods enforce this.
type Optimizer struct {
	mu sync.Mutex

	space        *SearchSpace
	config       OptimizerConfig
	rng          *rand.Rand
	observations []Observation
	pending      []float64
}

// ObjectiveFunc evaluates one assignment and returns the value to minimise.
// iteration is 0-based.
type ObjectiveFunc func(iteration int, a Assignment) (float64, error)

// RunOption configures Minimize.
type RunOption func(*runOptions)

type runOptions struct {
	progress  chan<- ProgressUpdate
	afterTell func(iteration int, obs Observation) error
}

//////
// Exported functionalities.
//////

// DefaultOptimizerConfig returns a default configuration: five random initial
// points, then Expected Improvement over 200 candidates, seed 42.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		InitialPoints:   5,
		NumCandidates:   200,
		AcquisitionFunc: ExpectedImprovement,
		AcqParams: AcquisitionParams{
			Beta: 2.0,
			Xi:   0.01,
		},
		Seed:        42,
		LengthScale: 0.2,
		Noise:       1e-6,
	}
}

// WithProgress sends a ProgressUpdate after every Tell. Updates are dropped
// when the channel is full.
func WithProgress(ch chan<- ProgressUpdate) RunOption {
	return func(o *runOptions) { o.progress = ch }
}

// WithAfterTell calls fn after every successful Tell. An error aborts the run.
func WithAfterTell(fn func(iteration int, obs Observation) error) RunOption {
	return func(o *runOptions) { o.afterTell = fn }
}

// Minimize drives iterations rounds of Ask, objective, Tell on o and returns
// the best observation.
//
// How it works:
// 1. The first InitialPoints asks sample the space at random
// 2. Every later ask fits the Gaussian Process to all observations and picks
//    the most promising of NumCandidates random candidates
// 3. Each objective value is told back before the next ask
//
// Any error from the objective or a hook aborts the run; observations made so
// far stay in o.
func Minimize(o *Optimizer, iterations int, objective ObjectiveFunc, opts ...RunOption) (Observation, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	if iterations < 1 {
		return Observation{}, apperrors.Configuration("iterations must be at least 1, got %d", iterations)
	}

	for i := 0; i < iterations; i++ {
		phase := o.Phase()

		a, err := o.Ask()
		if err != nil {
			return Observation{}, err
		}

		value, err := objective(i, a)
		if err != nil {
			return Observation{}, err
		}

		if err := o.Tell(a, value); err != nil {
			return Observation{}, err
		}

		obs := Observation{Assignment: a.Clone(), Objective: value}

		if ro.afterTell != nil {
			if err := ro.afterTell(i, obs); err != nil {
				return Observation{}, err
			}
		}

		sendProgress(ro.progress, o, phase, i+1, iterations, a, value)
	}

	best, _ := o.Best()

	return best, nil
}

//////
// Methods.
//////

// Ask proposes the next assignment to evaluate.
func (o *Optimizer) Ask() (Assignment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.space.Len() == 0 {
		return nil, apperrors.Configuration("search space has no dimensions")
	}

	if o.pending != nil {
		return nil, ErrPendingAsk
	}

	var point []float64

	if len(o.observations) < o.config.InitialPoints {
		point = o.space.sample(o.rng)
	} else {
		p, err := o.propose()
		if err != nil {
			return nil, err
		}

		point = p
	}

	o.pending = point

	return o.space.assignment(point), nil
}

// Tell records the objective observed for the pending assignment.
func (o *Optimizer) Tell(a Assignment, objective float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending == nil {
		return ErrNoPendingAsk
	}

	point, err := o.space.point(a)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssignmentMismatch, err)
	}

	if !equalPoints(point, o.pending) {
		return ErrAssignmentMismatch
	}

	if !isFinite(objective) {
		return fmt.Errorf("objective must be finite, got %v", objective)
	}

	o.observations = append(o.observations, Observation{
		Assignment: a.Clone(),
		Objective:  objective,
		point:      point,
	})
	o.pending = nil

	return nil
}

// Observations returns a copy of the history in tell order.
func (o *Optimizer) Observations() []Observation {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Observation, len(o.observations))
	for i, obs := range o.observations {
		out[i] = Observation{
			Assignment: obs.Assignment.Clone(),
			Objective:  obs.Objective,
			point:      append([]float64(nil), obs.point...),
		}
	}

	return out
}

// Best returns the observation with the lowest objective; the earliest wins
// ties. ok is false when nothing has been told yet.
func (o *Optimizer) Best() (obs Observation, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	idx := o.bestIndex()
	if idx < 0 {
		return Observation{}, false
	}

	best := o.observations[idx]

	return Observation{Assignment: best.Assignment.Clone(), Objective: best.Objective, point: best.point}, true
}

// Phase returns the phase the next Ask falls into.
func (o *Optimizer) Phase() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.observations) < o.config.InitialPoints {
		return PhaseInitialSampling
	}

	return PhaseOptimization
}

// Space returns the optimizer's search space.
func (o *Optimizer) Space() *SearchSpace {
	return o.space
}

func (o *Optimizer) bestIndex() int {
	idx := -1
	best := math.Inf(1)

	for i, obs := range o.observations {
		if obs.Objective < best {
			best = obs.Objective
			idx = i
		}
	}

	return idx
}

// propose fits the surrogate and returns the candidate with the lowest
// acquisition value. Callers hold o.mu.
func (o *Optimizer) propose() ([]float64, error) {
	gp := newGaussianProcess(o.config.LengthScale, o.config.Noise)

	for _, obs := range o.observations {
		gp.Update(o.space.normalize(obs.point), obs.Objective)
	}

	if err := gp.Fit(); err != nil {
		return nil, fmt.Errorf("fit surrogate: %w", err)
	}

	params := o.config.AcqParams
	params.BestSoFar = o.observations[o.bestIndex()].Objective

	if params.RandomState == nil {
		params.RandomState = o.rng
	}

	var next []float64

	bestAcquisition := math.Inf(1)

	for j := 0; j < o.config.NumCandidates; j++ {
		candidate := o.space.sample(o.rng)

		mean, variance := gp.Predict(o.space.normalize(candidate))

		acquisition := o.config.AcquisitionFunc(mean, variance, params)
		if next == nil || acquisition < bestAcquisition {
			bestAcquisition = acquisition
			next = candidate
		}
	}

	return next, nil
}

//////
// Factory.
//////

// NewOptimizer creates an optimizer over space.
//
// Zero values in config fall back to DefaultOptimizerConfig for
// NumCandidates, AcquisitionFunc, LengthScale and Noise. InitialPoints may be
// zero, in which case the surrogate drives every ask after the first.
func NewOptimizer(space *SearchSpace, config OptimizerConfig) (*Optimizer, error) {
	if space.Len() == 0 {
		return nil, apperrors.Configuration("search space has no dimensions")
	}

	if config.InitialPoints < 0 {
		return nil, apperrors.Configuration("initial points must not be negative, got %d", config.InitialPoints)
	}

	if config.InitialPoints == 0 {
		config.InitialPoints = 1
	}

	defaults := DefaultOptimizerConfig()

	if config.NumCandidates <= 0 {
		config.NumCandidates = defaults.NumCandidates
	}

	if config.AcquisitionFunc == nil {
		config.AcquisitionFunc = defaults.AcquisitionFunc
	}

	if config.LengthScale <= 0 {
		config.LengthScale = defaults.LengthScale
	}

	if config.Noise <= 0 {
		config.Noise = defaults.Noise
	}

	return &Optimizer{
		space:  space,
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}, nil
}

func sendProgress(ch chan<- ProgressUpdate, o *Optimizer, phase string, iteration, total int, current Assignment, value float64) {
	if ch == nil {
		return
	}

	best, _ := o.Best()

	update := ProgressUpdate{
		Phase:             phase,
		CurrentIteration:  iteration,
		TotalIterations:   total,
		CurrentParams:     current.Clone(),
		CurrentBestParams: best.Assignment,
		CurrentBestValue:  best.Objective,
		LastValue:         value,
	}

	select {
	case ch <- update:
	default:
		// Skip update if channel is full.
	}
}
