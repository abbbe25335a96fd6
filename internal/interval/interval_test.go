package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func iv(start, end string) Interval {
	return MustNew(day(start), day(end))
}

func TestNewRejectsReversedRange(t *testing.T) {
	_, err := New(day("2025-01-10"), day("2025-01-01"))
	require.Error(t, err)
}

func TestNewSingleDay(t *testing.T) {
	i, err := New(day("2025-01-05"), day("2025-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 1, i.Days())
	assert.True(t, i.Contains(day("2025-01-05")))
}

func TestAddMergesOverlapping(t *testing.T) {
	s := NewSet()
	s.Add(iv("2025-01-01", "2025-01-10"))
	s.Add(iv("2025-01-05", "2025-01-15"))

	got := s.Intervals()
	require.Len(t, got, 1)
	assert.Equal(t, iv("2025-01-01", "2025-01-15"), got[0])
}

func TestAddMergesAdjacent(t *testing.T) {
	s := NewSet()
	s.Add(iv("2025-01-01", "2025-01-10"))
	s.Add(iv("2025-01-11", "2025-01-20"))

	got := s.Intervals()
	require.Len(t, got, 1)
	assert.Equal(t, iv("2025-01-01", "2025-01-20"), got[0])
}

func TestAddKeepsDisjoint(t *testing.T) {
	s := NewSet()
	s.Add(iv("2025-01-20", "2025-01-31"))
	s.Add(iv("2025-01-01", "2025-01-10"))

	got := s.Intervals()
	require.Len(t, got, 2)
	assert.Equal(t, iv("2025-01-01", "2025-01-10"), got[0])
	assert.Equal(t, iv("2025-01-20", "2025-01-31"), got[1])
}

func TestAddIdempotent(t *testing.T) {
	s := NewSet()
	s.Add(iv("2025-01-01", "2025-01-10"))
	before := s.Intervals()

	s.Add(iv("2025-01-01", "2025-01-10"))
	assert.Equal(t, before, s.Intervals())
	assert.Equal(t, 10, s.TotalDays())
}

func TestAddBridgesMultiple(t *testing.T) {
	s := NewSet()
	s.Add(iv("2025-01-01", "2025-01-05"))
	s.Add(iv("2025-01-10", "2025-01-15"))
	s.Add(iv("2025-01-20", "2025-01-25"))

	// Bridges all three plus the gaps
	s.Add(iv("2025-01-04", "2025-01-21"))

	got := s.Intervals()
	require.Len(t, got, 1)
	assert.Equal(t, iv("2025-01-01", "2025-01-25"), got[0])
}

func TestSubtractFullMiss(t *testing.T) {
	s := NewSet()
	missing := s.Subtract(iv("2025-03-01", "2025-03-05"))
	require.Len(t, missing, 1)
	assert.Equal(t, iv("2025-03-01", "2025-03-05"), missing[0])
}

func TestSubtractFullHit(t *testing.T) {
	s := NewSet(iv("2025-01-01", "2025-01-31"))
	assert.Empty(t, s.Subtract(iv("2025-01-05", "2025-01-20")))
	assert.True(t, s.Contains(iv("2025-01-05", "2025-01-20")))
}

func TestSubtractGapInMiddle(t *testing.T) {
	s := NewSet(iv("2025-01-01", "2025-01-10"), iv("2025-01-20", "2025-01-31"))

	missing := s.Subtract(iv("2025-01-01", "2025-01-31"))
	require.Len(t, missing, 1)
	assert.Equal(t, iv("2025-01-11", "2025-01-19"), missing[0])
}

func TestSubtractMultipleGaps(t *testing.T) {
	s := NewSet(iv("2025-01-05", "2025-01-08"), iv("2025-01-15", "2025-01-18"))

	missing := s.Subtract(iv("2025-01-01", "2025-01-31"))
	require.Len(t, missing, 3)
	assert.Equal(t, iv("2025-01-01", "2025-01-04"), missing[0])
	assert.Equal(t, iv("2025-01-09", "2025-01-14"), missing[1])
	assert.Equal(t, iv("2025-01-19", "2025-01-31"), missing[2])
}

func TestIntersect(t *testing.T) {
	s := NewSet(iv("2025-01-01", "2025-01-10"), iv("2025-01-20", "2025-01-31"))

	hits := s.Intersect(iv("2025-01-05", "2025-01-25"))
	require.Len(t, hits, 2)
	assert.Equal(t, iv("2025-01-05", "2025-01-10"), hits[0])
	assert.Equal(t, iv("2025-01-20", "2025-01-25"), hits[1])
}

func TestRemoveSplitsSegment(t *testing.T) {
	s := NewSet(iv("2025-01-01", "2025-01-31"))
	s.Remove(iv("2025-01-10", "2025-01-20"))

	got := s.Intervals()
	require.Len(t, got, 2)
	assert.Equal(t, iv("2025-01-01", "2025-01-09"), got[0])
	assert.Equal(t, iv("2025-01-21", "2025-01-31"), got[1])
}

func TestRemoveWholeAndPartial(t *testing.T) {
	s := NewSet(iv("2025-01-01", "2025-01-05"), iv("2025-01-10", "2025-01-15"))
	s.Remove(iv("2025-01-03", "2025-01-12"))

	got := s.Intervals()
	require.Len(t, got, 2)
	assert.Equal(t, iv("2025-01-01", "2025-01-02"), got[0])
	assert.Equal(t, iv("2025-01-13", "2025-01-15"), got[1])
}

// Subtract plus Intersect must partition the query exactly.
func TestSubtractIntersectPartition(t *testing.T) {
	s := NewSet(iv("2025-01-03", "2025-01-07"), iv("2025-01-12", "2025-01-14"), iv("2025-01-20", "2025-01-20"))
	q := iv("2025-01-01", "2025-01-25")

	covered := 0
	for _, h := range s.Intersect(q) {
		covered += h.Days()
	}
	missing := 0
	for _, m := range s.Subtract(q) {
		missing += m.Days()
	}
	assert.Equal(t, q.Days(), covered+missing)
}
