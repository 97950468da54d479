package byterange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntersect(t *testing.T) {
	a := Range{Offset: 0, Length: 10}
	b := Range{Offset: 5, Length: 10}
	c := Range{Offset: 10, Length: 10}
	empty := Range{Offset: 0, Length: 0}

	assert.True(t, a.Intersect(b))
	assert.True(t, b.Intersect(a))
	assert.False(t, a.Intersect(c), "adjacent half-open ranges must not intersect")
	assert.False(t, a.Intersect(empty))
}

func TestAnyOverlapDetectsPairwiseOverlapRegardlessOfOrder(t *testing.T) {
	overlapping := Ranges{
		{Offset: 100, Length: 10},
		{Offset: 0, Length: 10},
		{Offset: 5, Length: 10},
	}
	assert.True(t, overlapping.AnyOverlap())

	disjoint := Ranges{
		{Offset: 100, Length: 10},
		{Offset: 0, Length: 10},
		{Offset: 10, Length: 90},
	}
	assert.False(t, disjoint.AnyOverlap())
}

func TestTilesExactly(t *testing.T) {
	ranges := Ranges{
		{Offset: 0, Length: 10},
		{Offset: 10, Length: 20},
		{Offset: 30, Length: 5},
	}
	assert.NoError(t, ranges.TilesExactly(35))
	assert.Error(t, ranges.TilesExactly(40), "must end exactly at total")
}

func TestTilesExactlyDetectsGap(t *testing.T) {
	ranges := Ranges{
		{Offset: 0, Length: 10},
		{Offset: 20, Length: 10},
	}
	assert.Error(t, ranges.TilesExactly(30))
}

func TestSortOrdersByOffset(t *testing.T) {
	ranges := Ranges{
		{Offset: 20, Length: 5},
		{Offset: 0, Length: 5},
		{Offset: 10, Length: 5},
	}
	ranges.Sort()
	assert.Equal(t, Ranges{
		{Offset: 0, Length: 5},
		{Offset: 10, Length: 5},
		{Offset: 20, Length: 5},
	}, ranges)
}
