package kmeans

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultDatasetSize is the number of points in a generated dataset.
const DefaultDatasetSize = 300

// GenerateDataset draws n points whose coordinates are independent
// standard normal variates.
func GenerateDataset(n int, rng *rand.Rand) []Point {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	points := make([]Point, n)
	for i := range points {
		points[i] = Point{X: normal.Rand(), Y: normal.Rand()}
	}
	return points
}
