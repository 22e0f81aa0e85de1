package kmeans

import "gonum.org/v1/gonum/stat"

// Update moves each centroid to the mean of its group. A centroid whose
// group is empty stays exactly where it was.
func Update(partition Partition, previous []Point) []Point {
	next := make([]Point, len(previous))
	xs := make([]float64, 0)
	ys := make([]float64, 0)

	for i := range previous {
		if i >= len(partition) || len(partition[i]) == 0 {
			next[i] = previous[i]
			continue
		}

		xs, ys = xs[:0], ys[:0]
		for _, p := range partition[i] {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
		next[i] = Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
	}
	return next
}
