package tune

import (
	"errors"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//////
// Const, vars, types.
//////

// maxJitterAttempts bounds how often the diagonal is inflated when the kernel
// matrix is not numerically positive definite.
const maxJitterAttempts = 6

// errKernelNotPD is returned when no jitter makes the kernel factorizable.
var errKernelNotPD = errors.New("kernel matrix is not positive definite")

// gaussianProcess implements a Gaussian Process regression surrogate with
// multidimensional inputs. It predicts the objective of untested
// hyperparameter combinations from the observations told so far.
//
// Fields:
// - mu: RWMutex guarding all fields
// - X: observed input points, normalised to [0, 1]
// - Y: observed objectives at each input point
// - lengthScale: RBF kernel width
// - noise: observation noise added to the kernel diagonal
//
// The posterior is computed by Fit with a Cholesky factorization of the
// kernel matrix on standardised outputs; Predict reuses it.
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the input points (hyperparameter combinations)
	X [][]float64

	// Y stores the observed objectives at each point in X
	Y []float64

	// lengthScale is the kernel width parameter
	// Larger values = smoother interpolation
	// Smaller values = more local influence
	lengthScale float64

	// noise is added to the kernel diagonal
	noise float64

	// Posterior state produced by Fit.
	yMean float64
	yStd  float64
	chol  *mat.Cholesky
	alpha *mat.VecDense
}

//////
// Methods.
//////

// rbf implements the Radial Basis Function (also known as Gaussian) kernel.
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * l^2))
//
// Panics if input vectors have different lengths. Callers hold gp.mu.
func (gp *gaussianProcess) rbf(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * gp.lengthScale * gp.lengthScale))
}

// Update adds a new observation to the model. The posterior is invalidated
// until the next Fit.
func (gp *gaussianProcess) Update(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	// Create deep copy of input to prevent external modifications
	newX := make([]float64, len(x))
	copy(newX, x)

	gp.X = append(gp.X, newX)
	gp.Y = append(gp.Y, y)
	gp.chol = nil
	gp.alpha = nil
}

// Fit computes the posterior over all observations.
//
// Outputs are standardised before the solve so that the unit signal variance
// of the kernel matches the data. When the kernel matrix cannot be factorized
// the diagonal jitter is multiplied by ten, up to maxJitterAttempts times.
func (gp *gaussianProcess) Fit() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	n := len(gp.X)
	if n == 0 {
		return nil
	}

	gp.yMean, gp.yStd = stat.MeanStdDev(gp.Y, nil)
	if n < 2 || gp.yStd == 0 || math.IsNaN(gp.yStd) {
		gp.yStd = 1
	}

	y := make([]float64, n)
	for i, v := range gp.Y {
		y[i] = (v - gp.yMean) / gp.yStd
	}

	kernel := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k := gp.rbf(gp.X[i], gp.X[j])
			kernel[i*n+j] = k
			kernel[j*n+i] = k
		}
	}

	jitter := gp.noise
	for attempt := 0; attempt < maxJitterAttempts; attempt++ {
		data := make([]float64, len(kernel))
		copy(data, kernel)

		for i := 0; i < n; i++ {
			data[i*n+i] += jitter
		}

		var chol mat.Cholesky
		if chol.Factorize(mat.NewSymDense(n, data)) {
			var alpha mat.VecDense
			if err := chol.SolveVecTo(&alpha, mat.NewVecDense(n, y)); err != nil {
				return err
			}

			gp.chol = &chol
			gp.alpha = &alpha

			return nil
		}

		jitter *= 10
	}

	return errKernelNotPD
}

// Predict estimates the objective and its uncertainty at a given point.
//
// Parameters:
// - x: normalised input point
//
// Returns:
// - mean: expected objective at the input point
// - variance: uncertainty in the prediction (higher = less certain)
//
// Returns (0, 1) when the model has no fitted posterior, so the first
// proposals are driven by exploration only.
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if gp.chol == nil {
		return 0, 1
	}

	n := len(gp.X)

	k := make([]float64, n)
	for i := range gp.X {
		k[i] = gp.rbf(x, gp.X[i])
	}

	kVec := mat.NewVecDense(n, k)

	mean = mat.Dot(kVec, gp.alpha)*gp.yStd + gp.yMean

	var v mat.VecDense
	if err := gp.chol.SolveVecTo(&v, kVec); err != nil {
		return mean, gp.yStd * gp.yStd
	}

	variance = 1 - mat.Dot(kVec, &v)
	if variance < 1e-12 {
		variance = 1e-12
	}

	return mean, variance * gp.yStd * gp.yStd
}

//////
// Factory.
//////

// newGaussianProcess creates a model for inputs normalised to [0, 1].
// Non-positive arguments fall back to lengthScale 0.2 and noise 1e-6.
func newGaussianProcess(lengthScale, noise float64) *gaussianProcess {
	if lengthScale <= 0 {
		lengthScale = 0.2
	}

	if noise <= 0 {
		noise = 1e-6
	}

	return &gaussianProcess{
		lengthScale: lengthScale,
		noise:       noise,
		yStd:        1,
	}
}
