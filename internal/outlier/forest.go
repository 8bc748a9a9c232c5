package outlier

import (
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int
	leaf    bool
}

// Forest is an isolation forest over fixed-length feature vectors. It is
// read-only once built.
type Forest struct {
	trees      []*node
	sampleSize int
	maxDepth   int
}

type ForestConfig struct {
	NumTrees      int
	SubSampleSize int
	MaxDepth      int
}

// BuildForest grows cfg.NumTrees trees on random subsamples of data.
func BuildForest(data [][]float64, cfg ForestConfig, rng *rand.Rand) *Forest {
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = 100
	}
	if cfg.SubSampleSize <= 0 {
		cfg.SubSampleSize = 256
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = int(math.Ceil(math.Log2(float64(cfg.SubSampleSize))))
	}

	size := cfg.SubSampleSize
	if size > len(data) {
		size = len(data)
	}

	f := &Forest{trees: make([]*node, 0, cfg.NumTrees), sampleSize: size, maxDepth: cfg.MaxDepth}
	if len(data) == 0 {
		return f
	}

	idx := make([]int, len(data))
	for i := range idx {
		idx[i] = i
	}
	for t := 0; t < cfg.NumTrees; t++ {
		// Partial Fisher-Yates: the first size entries become the subsample.
		for i := 0; i < size; i++ {
			j := i + rng.Intn(len(idx)-i)
			idx[i], idx[j] = idx[j], idx[i]
		}
		sample := make([][]float64, size)
		for i := 0; i < size; i++ {
			sample[i] = data[idx[i]]
		}
		f.trees = append(f.trees, f.grow(sample, 0, rng))
	}
	return f
}

func (f *Forest) grow(data [][]float64, depth int, rng *rand.Rand) *node {
	if len(data) <= 1 || depth >= f.maxDepth {
		return &node{size: len(data), leaf: true}
	}

	// Only features that vary in this partition can split it.
	var candidates []int
	for j := range data[0] {
		lo, hi := featureRange(data, j)
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(data), leaf: true}
	}

	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := featureRange(data, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, p := range data {
		if p[feature] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &node{size: len(data), leaf: true}
	}

	return &node{
		feature: feature,
		split:   split,
		left:    f.grow(left, depth+1, rng),
		right:   f.grow(right, depth+1, rng),
		size:    len(data),
	}
}

func featureRange(data [][]float64, j int) (float64, float64) {
	lo, hi := data[0][j], data[0][j]
	for _, p := range data[1:] {
		if p[j] < lo {
			lo = p[j]
		}
		if p[j] > hi {
			hi = p[j]
		}
	}
	return lo, hi
}

// Score returns the anomaly score 2^(-E[h(x)]/c(n)) in (0, 1]; values near 1
// are easy to isolate.
func (f *Forest) Score(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var total float64
	for _, t := range f.trees {
		total += pathLength(t, x, 0)
	}
	avg := total / float64(len(f.trees))
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avg/c)
}

func (f *Forest) Trees() int {
	return len(f.trees)
}

func pathLength(n *node, x []float64, depth int) float64 {
	for !n.leaf {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n) = 2H(n-1) - 2(n-1)/n, the mean path length of an
// unsuccessful search in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}
