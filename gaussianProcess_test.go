package tune

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianProcessWithoutObservations(t *testing.T) {
	gp := newGaussianProcess(0, 0)

	require.NoError(t, gp.Fit())

	mean, variance := gp.Predict([]float64{0.5})
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 1.0, variance)
}

func TestGaussianProcessInterpolatesObservations(t *testing.T) {
	gp := newGaussianProcess(0.2, 1e-8)

	xs := []float64{0, 0.25, 0.5, 0.75, 1}
	for _, x := range xs {
		gp.Update([]float64{x}, math.Sin(3*x))
	}

	require.NoError(t, gp.Fit())

	for _, x := range xs {
		mean, variance := gp.Predict([]float64{x})
		assert.InDelta(t, math.Sin(3*x), mean, 1e-3)
		assert.Less(t, variance, 1e-3)
	}

	_, far := gp.Predict([]float64{3})
	_, near := gp.Predict([]float64{0.5})
	assert.Greater(t, far, near)
}

func TestGaussianProcessHandlesDuplicatePoints(t *testing.T) {
	gp := newGaussianProcess(0.2, 1e-6)

	gp.Update([]float64{0.3, 0.3}, 1)
	gp.Update([]float64{0.3, 0.3}, 1)
	gp.Update([]float64{0.6, 0.1}, 2)

	require.NoError(t, gp.Fit())

	mean, variance := gp.Predict([]float64{0.3, 0.3})
	assert.InDelta(t, 1, mean, 1e-2)
	assert.False(t, math.IsNaN(variance))
}

func TestAcquisitionFunctionsPreferLowerMean(t *testing.T) {
	params := AcquisitionParams{Beta: 2, Xi: 0.01, BestSoFar: 1, RandomState: rand.New(rand.NewSource(1))}

	for name, fn := range map[string]AcquisitionFunc{
		"ucb": UCB,
		"pi":  ProbabilityOfImprovement,
		"ei":  ExpectedImprovement,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Less(t, fn(0.5, 0.1, params), fn(1.5, 0.1, params))
		})
	}

	assert.InDelta(t, -0.49, ExpectedImprovement(0.5, 0, params), 1e-12)
	assert.Equal(t, 0.0, ExpectedImprovement(2, 0, params))
	assert.Equal(t, -1.0, ProbabilityOfImprovement(0.5, 0, params))
}
