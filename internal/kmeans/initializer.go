package kmeans

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Method names an initialisation strategy. The values match the labels
// the browser UI sends.
type Method string

const (
	MethodRandom        Method = "Random"
	MethodFarthestFirst Method = "Farthest First"
	MethodKMeansPP      Method = "KMeans++"
	MethodManual        Method = "Manual"
)

// Methods lists the supported strategies in UI order.
var Methods = []Method{MethodRandom, MethodFarthestFirst, MethodKMeansPP, MethodManual}

// ParseMethod maps a UI label onto a Method.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown initialization method %q", ErrInvalidParameter, s)
}

// Initialize picks k centroids from points using the given strategy.
// MethodManual is rejected here because it needs caller-supplied centroids;
// use ValidateCentroids instead.
func Initialize(method Method, k int, points []Point, rng *rand.Rand) ([]Point, error) {
	if err := validateK(k, len(points)); err != nil {
		return nil, err
	}

	switch method {
	case MethodRandom:
		return randomInit(k, points, rng), nil
	case MethodFarthestFirst:
		return farthestFirstInit(k, points, rng), nil
	case MethodKMeansPP:
		return kmeansPlusPlusInit(k, points, rng), nil
	case MethodManual:
		return nil, fmt.Errorf("%w: manual initialization requires explicit centroids", ErrInvalidParameter)
	default:
		return nil, fmt.Errorf("%w: unknown initialization method %q", ErrInvalidParameter, method)
	}
}

// ValidateCentroids checks a caller-supplied centroid list against a
// dataset of n points and returns a private copy of it.
func ValidateCentroids(centroids []Point, n int) ([]Point, error) {
	if err := validateK(len(centroids), n); err != nil {
		return nil, err
	}
	for i, c := range centroids {
		if !c.IsFinite() {
			return nil, fmt.Errorf("%w: centroid %d has non-finite coordinates %v", ErrInvalidParameter, i, c)
		}
	}
	return clonePoints(centroids), nil
}

func validateK(k, n int) error {
	if k < 1 || k > n {
		return fmt.Errorf("%w: k=%d outside [1, %d]", ErrInvalidParameter, k, n)
	}
	return nil
}

// randomInit samples k distinct points uniformly without replacement.
func randomInit(k int, points []Point, rng *rand.Rand) []Point {
	idxs := make([]int, k)
	sampleuv.WithoutReplacement(idxs, len(points), rng)

	centroids := make([]Point, k)
	for i, idx := range idxs {
		centroids[i] = points[idx]
	}
	return centroids
}

// farthestFirstInit seeds with a uniform pick, then extends the seed by
// farthest-point traversal.
func farthestFirstInit(k int, points []Point, rng *rand.Rand) []Point {
	centroids := make([]Point, 0, k)
	centroids = append(centroids, points[rng.IntN(len(points))])
	return extendFarthestFirst(centroids, k, points)
}

// extendFarthestFirst appends the point farthest from its nearest chosen
// centroid until k centroids exist. Ties go to the first point in dataset
// order.
func extendFarthestFirst(centroids []Point, k int, points []Point) []Point {
	nearest := make([]float64, len(points))
	for len(centroids) < k {
		for i, p := range points {
			nearest[i] = nearestDistance(p, centroids, Distance)
		}
		centroids = append(centroids, points[floats.MaxIdx(nearest)])
	}
	return centroids
}

// kmeansPlusPlusInit seeds with a uniform pick, then samples each further
// centroid with probability proportional to the squared distance to its
// nearest chosen centroid.
func kmeansPlusPlusInit(k int, points []Point, rng *rand.Rand) []Point {
	centroids := make([]Point, 0, k)
	centroids = append(centroids, points[rng.IntN(len(points))])

	weights := make([]float64, len(points))
	cumulative := make([]float64, len(points))
	for len(centroids) < k {
		for i, p := range points {
			weights[i] = nearestDistance(p, centroids, SquaredDistance)
		}
		idx := sampleCumulative(weights, cumulative, rng.Float64())
		centroids = append(centroids, points[idx])
	}
	return centroids
}

// sampleCumulative normalises weights into probabilities (uniform when they
// sum to exactly zero), accumulates them in order into cumulative, and
// returns the first index whose cumulative probability exceeds r.
func sampleCumulative(weights, cumulative []float64, r float64) int {
	n := len(weights)
	total := floats.Sum(weights)
	if total == 0 {
		for i := range cumulative {
			cumulative[i] = 1 / float64(n)
		}
	} else {
		for i, w := range weights {
			cumulative[i] = w / total
		}
	}
	floats.CumSum(cumulative, cumulative)

	for i, c := range cumulative {
		if r < c {
			return i
		}
	}

	// Rounding can leave the final cumulative value just below r.
	for i := n - 1; i >= 0; i-- {
		if total == 0 || weights[i] > 0 {
			return i
		}
	}
	return n - 1
}

func nearestDistance(p Point, centroids []Point, dist func(Point, Point) float64) float64 {
	best := dist(p, centroids[0])
	for _, c := range centroids[1:] {
		if d := dist(p, c); d < best {
			best = d
		}
	}
	return best
}
