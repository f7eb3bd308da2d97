package tune

import "math"

//////
// Available acquisition functions for Bayesian optimization.
// Each function helps decide which points to evaluate next by balancing
// exploration (trying new areas) and exploitation (focusing on known good areas).
// All of them return lower values for more promising points, matching the
// minimised objective.
//////

// UCB implements the confidence-bound acquisition function for minimisation.
//
// How it works:
// - Subtracts Beta standard deviations from the predicted mean
// - Lower values are better (we're minimizing the objective)
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	value := UCB(0.5, 0.2, params)
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement (PI) scores a point by the probability that it
// beats BestSoFar by at least Xi. The probability is negated so that lower is
// better.
//
// When to use:
// - When you want to be conservative in exploring new points
// - When you're fine with small improvements
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - params.Xi - mean

	sigma := math.Sqrt(variance)
	if sigma == 0 {
		if improvement > 0 {
			return -1
		}

		return 0
	}

	return -normalCDF(improvement / sigma)
}

// ExpectedImprovement (EI) scores a point by the expected amount by which it
// beats BestSoFar - Xi, negated so that lower is better.
//
// How it works:
// - Combines the probability of improvement with the magnitude of improvement
// - Balances how likely and how large the improvement might be
// - Often provides better exploration than PI
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - params.Xi - mean

	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return -math.Max(improvement, 0)
	}

	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling implements Thompson Sampling acquisition by drawing a
// random sample from the posterior at the point.
//
// Warning:
// - RandomState must be set; the optimizer fills it with its own seeded
//   generator when left nil.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}
