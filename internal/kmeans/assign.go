package kmeans

import "gonum.org/v1/gonum/floats"

// Partition holds one group of points per centroid, index-aligned with the
// centroid sequence. Groups may be empty.
type Partition [][]Point

// Len returns the total number of points across all groups.
func (p Partition) Len() int {
	n := 0
	for _, g := range p {
		n += len(g)
	}
	return n
}

// Sizes returns the number of points in each group.
func (p Partition) Sizes() []int {
	sizes := make([]int, len(p))
	for i, g := range p {
		sizes[i] = len(g)
	}
	return sizes
}

// Assign groups every point with its nearest centroid. Ties go to the
// lowest centroid index. Points keep their dataset order within a group.
func Assign(centroids []Point, points []Point) Partition {
	partition := make(Partition, len(centroids))
	for i := range partition {
		partition[i] = []Point{}
	}
	if len(centroids) == 0 {
		return partition
	}

	dists := make([]float64, len(centroids))
	for _, p := range points {
		for j, c := range centroids {
			dists[j] = Distance(p, c)
		}
		idx := floats.MinIdx(dists)
		partition[idx] = append(partition[idx], p)
	}
	return partition
}

// Inertia is the within-cluster sum of squared distances of every point to
// the centroid of its group.
func Inertia(centroids []Point, partition Partition) float64 {
	var total float64
	for i, g := range partition {
		if i >= len(centroids) {
			break
		}
		for _, p := range g {
			total += SquaredDistance(p, centroids[i])
		}
	}
	return total
}
