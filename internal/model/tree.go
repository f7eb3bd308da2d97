package model

import (
	"math/rand"
	"sort"
)

// treeNode is either a leaf carrying P(y=1) or a numeric split
// (x[Feature] <= Threshold goes left).
type treeNode struct {
	Leaf      bool
	Proba     float64
	Feature   int
	Threshold float64
	Left      *treeNode
	Right     *treeNode
}

// decisionTree is a CART classifier with gini impurity, grown on the rows
// selected by a forest.
type decisionTree struct {
	Root        *treeNode
	Importances []float64
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int
}

// split is the best partition found for one node.
type split struct {
	feature   int
	threshold float64
	impurity  float64
	left      []int
	right     []int
}

func growTree(X [][]float64, y []int, rows []int, params treeParams, rng *rand.Rand) *decisionTree {
	t := &decisionTree{Importances: make([]float64, len(X[0]))}
	t.Root = t.build(X, y, rows, 0, params, rng)

	return t
}

func (t *decisionTree) build(X [][]float64, y []int, rows []int, depth int, params treeParams, rng *rand.Rand) *treeNode {
	n := len(rows)
	pos := countPositive(y, rows)
	leaf := &treeNode{Leaf: true, Proba: float64(pos) / float64(n)}

	if pos == 0 || pos == n || n < 2*params.minLeaf {
		return leaf
	}

	if params.maxDepth > 0 && depth >= params.maxDepth {
		return leaf
	}

	parent := gini(pos, n)

	best, ok := bestSplit(X, y, rows, params, rng)
	if !ok || best.impurity >= parent {
		return leaf
	}

	t.Importances[best.feature] += float64(n) * (parent - best.impurity)

	return &treeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      t.build(X, y, best.left, depth+1, params, rng),
		Right:     t.build(X, y, best.right, depth+1, params, rng),
	}
}

// bestSplit scans maxFeatures randomly chosen features. Lower weighted gini
// wins; the first candidate found wins ties.
func bestSplit(X [][]float64, y []int, rows []int, params treeParams, rng *rand.Rand) (split, bool) {
	p := len(X[0])
	features := rng.Perm(p)

	if params.maxFeatures > 0 && params.maxFeatures < p {
		features = features[:params.maxFeatures]
	}

	n := len(rows)
	totalPos := countPositive(y, rows)

	var (
		best  split
		found bool
	)

	sorted := make([]int, n)

	for _, f := range features {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		leftPos := 0

		for i := 0; i < n-1; i++ {
			leftPos += y[sorted[i]]

			nl := i + 1
			nr := n - nl

			if nl < params.minLeaf || nr < params.minLeaf {
				continue
			}

			lo, hi := X[sorted[i]][f], X[sorted[i+1]][f]
			if lo == hi {
				continue
			}

			impurity := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(totalPos-leftPos, nr)) / float64(n)

			if !found || impurity < best.impurity {
				found = true
				best = split{feature: f, threshold: (lo + hi) / 2, impurity: impurity}
			}
		}
	}

	if !found {
		return split{}, false
	}

	for _, r := range rows {
		if X[r][best.feature] <= best.threshold {
			best.left = append(best.left, r)
		} else {
			best.right = append(best.right, r)
		}
	}

	return best, true
}

func (t *decisionTree) proba(x []float64) float64 {
	node := t.Root
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}

	return node.Proba
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}

	p := float64(pos) / float64(n)

	return 2 * p * (1 - p)
}

func countPositive(y []int, rows []int) int {
	pos := 0
	for _, r := range rows {
		pos += y[r]
	}

	return pos
}
