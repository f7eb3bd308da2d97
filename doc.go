// Package tune provides sequential hyperparameter search using Bayesian
// optimization with Gaussian Processes. It is the optimizer behind the
// cross-validated model search in this module, and is usable on its own for
// any objective that should be minimised.
//
// # Features
//
// The package includes the following key features:
//
//   - Ask/Tell state machine: proposals and observations strictly alternate,
//     so the surrogate always sees observations in the order they were made
//   - Bayesian Optimization: Uses Gaussian Process regression to efficiently explore
//     parameter spaces after a number of random initial points
//   - Multiple Acquisition Functions: Upper Confidence Bound (UCB), Probability of
//     Improvement (PI), Expected Improvement (EI), and Thompson Sampling
//   - Integer and real dimensions declared with generic Bounds
//   - Reproducible: a fixed Seed and call sequence yields the same proposals
//   - Progress Monitoring: updates on optimization progress via channels
//
// # Search Space
//
//	space, err := tune.NewSearchSpace(
//	    tune.Integer("max_depth", tune.Bounds[int]{Min: 5, Max: 15}),
//	    tune.Integer("min_samples_leaf", tune.Bounds[int]{Min: 1, Max: 50}),
//	    tune.Real("min_weight_fraction_leaf", tune.Bounds[float64]{Min: 0, Max: 0.3}),
//	)
//
// # Ask and Tell
//
//	opt, err := tune.NewOptimizer(space, tune.DefaultOptimizerConfig())
//
//	for i := 0; i < 20; i++ {
//	    a, err := opt.Ask()
//	    // ... evaluate a ...
//	    err = opt.Tell(a, loss)
//	}
//
// Minimize wraps the same loop and reports progress:
//
//	best, err := tune.Minimize(opt, 20, func(i int, a tune.Assignment) (float64, error) {
//	    return evaluate(a)
//	}, tune.WithProgress(ch))
//
// # Acquisition Functions
//
// All acquisition functions return lower values for more promising points.
//
// 1. Upper Confidence Bound (UCB):
//
//   - Balances exploration and exploitation
//
//   - Controlled by Beta parameter (higher = more exploration)
//
//     config := DefaultOptimizerConfig()
//     config.AcquisitionFunc = UCB
//     config.AcqParams.Beta = 2.0
//
// 2. Probability of Improvement (PI):
//
//   - Conservative exploration strategy
//
//   - Focuses on small, reliable improvements
//
//     config.AcquisitionFunc = ProbabilityOfImprovement
//     config.AcqParams.Xi = 0.01
//
// 3. Expected Improvement (EI):
//
//   - Balances improvement probability and magnitude
//
//   - Default choice
//
// 4. Thompson Sampling:
//
//   - Draws from the posterior at each candidate
//
//   - Uses the optimizer's seeded generator unless RandomState is set
//
// # Thread Safety
//
// Optimizer methods are guarded by a mutex, but the protocol is sequential:
// a second Ask before the pending one is told fails with ErrPendingAsk.
package tune
