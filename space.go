package tune

import (
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"

	apperrors "github.com/thalesfsp/tune/internal/errors"
)

//////
// Const, vars, types.
//////

// maxExactInteger is the largest magnitude up to which float64 represents
// every integer.
const maxExactInteger = 1 << 53

// DimensionKind tells how values of a dimension are drawn.
type DimensionKind string

// Supported dimension kinds.
const (
	KindInteger DimensionKind = "integer"
	KindReal    DimensionKind = "real"
)

// Dimension is one named hyperparameter with inclusive bounds.
type Dimension struct {
	Name string
	Kind DimensionKind
	Low  float64
	High float64
}

// SearchSpace is the ordered, immutable set of dimensions searched by an
// Optimizer.
type SearchSpace struct {
	dims  []Dimension
	index map[string]int
}

//////
// Factory.
//////

// Integer declares an integer dimension.
func Integer(name string, b Bounds[int]) Dimension {
	return newDimension(name, KindInteger, b)
}

// Real declares a real-valued dimension.
func Real(name string, b Bounds[float64]) Dimension {
	return newDimension(name, KindReal, b)
}

func newDimension[T constraints.Integer | constraints.Float](name string, kind DimensionKind, b Bounds[T]) Dimension {
	return Dimension{Name: name, Kind: kind, Low: float64(b.Min), High: float64(b.Max)}
}

// NewSearchSpace validates dims and returns the space.
//
// Validation:
// - at least one dimension
// - names non-empty and unique
// - Low <= High, both finite
// - integer bounds within ±2^53, where float64 holds every integer exactly
func NewSearchSpace(dims ...Dimension) (*SearchSpace, error) {
	if len(dims) == 0 {
		return nil, apperrors.Configuration("search space has no dimensions")
	}

	s := &SearchSpace{
		dims:  make([]Dimension, len(dims)),
		index: make(map[string]int, len(dims)),
	}

	for i, d := range dims {
		if d.Name == "" {
			return nil, apperrors.Configuration("dimension %d has no name", i)
		}

		if _, dup := s.index[d.Name]; dup {
			return nil, apperrors.Configuration("duplicate dimension %q", d.Name)
		}

		if d.Kind != KindInteger && d.Kind != KindReal {
			return nil, apperrors.Configuration("dimension %q has unknown kind %q", d.Name, d.Kind)
		}

		if !isFinite(d.Low) || !isFinite(d.High) || d.Low > d.High {
			return nil, apperrors.Configuration("dimension %q has invalid bounds [%v, %v]", d.Name, d.Low, d.High)
		}

		if d.Kind == KindInteger && (math.Abs(d.Low) > maxExactInteger || math.Abs(d.High) > maxExactInteger) {
			return nil, apperrors.Configuration("integer dimension %q bounds [%v, %v] exceed ±2^53", d.Name, d.Low, d.High)
		}

		s.dims[i] = d
		s.index[d.Name] = i
	}

	return s, nil
}

//////
// Methods.
//////

// Len returns the number of dimensions.
func (s *SearchSpace) Len() int {
	if s == nil {
		return 0
	}

	return len(s.dims)
}

// Dimensions returns a copy of the dimensions in declaration order.
func (s *SearchSpace) Dimensions() []Dimension {
	out := make([]Dimension, len(s.dims))
	copy(out, s.dims)

	return out
}

// Names returns the dimension names in declaration order.
func (s *SearchSpace) Names() []string {
	names := make([]string, len(s.dims))
	for i, d := range s.dims {
		names[i] = d.Name
	}

	return names
}

// sample draws one point uniformly within the bounds.
func (s *SearchSpace) sample(rng *rand.Rand) []float64 {
	point := make([]float64, len(s.dims))

	for i, d := range s.dims {
		switch d.Kind {
		case KindInteger:
			low := int64(d.Low)
			high := int64(d.High)
			point[i] = float64(low + rng.Int63n(high-low+1))
		default:
			point[i] = d.Low + rng.Float64()*(d.High-d.Low)
		}
	}

	return point
}

// normalize maps a point to the unit hypercube for the surrogate.
func (s *SearchSpace) normalize(point []float64) []float64 {
	out := make([]float64, len(point))

	for i, d := range s.dims {
		if d.High == d.Low {
			continue
		}

		out[i] = (point[i] - d.Low) / (d.High - d.Low)
	}

	return out
}

func (s *SearchSpace) assignment(point []float64) Assignment {
	a := make(Assignment, len(s.dims))
	for i, d := range s.dims {
		a[d.Name] = point[i]
	}

	return a
}

// point converts an assignment back to declaration order, checking that it
// names exactly the space's dimensions and stays within bounds.
func (s *SearchSpace) point(a Assignment) ([]float64, error) {
	if len(a) != len(s.dims) {
		return nil, fmt.Errorf("assignment has %d values, space has %d dimensions", len(a), len(s.dims))
	}

	point := make([]float64, len(s.dims))

	for i, d := range s.dims {
		v, ok := a[d.Name]
		if !ok {
			return nil, fmt.Errorf("assignment is missing dimension %q", d.Name)
		}

		if v < d.Low || v > d.High {
			return nil, fmt.Errorf("value %v for %q is outside [%v, %v]", v, d.Name, d.Low, d.High)
		}

		if d.Kind == KindInteger && v != math.Trunc(v) {
			return nil, fmt.Errorf("value %v for integer dimension %q is not integral", v, d.Name)
		}

		point[i] = v
	}

	return point, nil
}
