package kmeans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_MeanOfMembers(t *testing.T) {
	partition := Partition{
		{{0, 0}, {0, 2}},
		{{10, 0}, {10, 2}},
	}
	got := Update(partition, []Point{{0, 0}, {10, 0}})
	assert.Equal(t, []Point{{0, 1}, {10, 1}}, got)
}

func TestUpdate_EmptyGroupFreezesCentroid(t *testing.T) {
	previous := []Point{{0.1234567, -9.87654321}, {1, 1}}
	partition := Partition{{}, {{2, 2}, {4, 6}}}

	got := Update(partition, previous)
	require.Len(t, got, 2)
	assert.Equal(t, previous[0], got[0])
	assert.Equal(t, Point{3, 4}, got[1])
}

func TestUpdate_DoesNotAliasPrevious(t *testing.T) {
	previous := []Point{{1, 1}}
	got := Update(Partition{{}}, previous)
	got[0].X = 42
	assert.Equal(t, 1.0, previous[0].X)
}
