package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankStandings_TiesKeepCreationOrder(t *testing.T) {
	standings := []Standing{
		{StudentID: "first", EcoPoints: 300, Seq: 1},
		{StudentID: "second", EcoPoints: 300, Seq: 2},
		{StudentID: "third", EcoPoints: 500, Seq: 3},
	}

	got := RankStandings(standings, 10)

	assert.Equal(t, []string{"third", "first", "second"}, ids(got))
	assert.Equal(t, []int{500, 300, 300}, points(got))
	assert.Equal(t, Rank(1), got[0].Rank)
	assert.Equal(t, Rank(3), got[2].Rank)
}

func TestRankStandings_DeterministicRegardlessOfInputOrder(t *testing.T) {
	a := []Standing{
		{StudentID: "b", EcoPoints: 300, Seq: 2},
		{StudentID: "c", EcoPoints: 500, Seq: 3},
		{StudentID: "a", EcoPoints: 300, Seq: 1},
	}
	b := []Standing{a[2], a[0], a[1]}

	assert.Equal(t, RankStandings(a, 0), RankStandings(b, 0))
	assert.Equal(t, "b", a[0].StudentID, "input must not be reordered")
}

func TestRankStandings_Limit(t *testing.T) {
	standings := []Standing{
		{StudentID: "a", EcoPoints: 1, Seq: 1},
		{StudentID: "b", EcoPoints: 2, Seq: 2},
		{StudentID: "c", EcoPoints: 3, Seq: 3},
	}

	assert.Equal(t, []string{"c", "b"}, ids(RankStandings(standings, 2)))
	assert.Len(t, RankStandings(standings, 0), 3)
	assert.Empty(t, RankStandings(nil, 5))
}

func TestTop(t *testing.T) {
	entries := RankStandings([]Standing{
		{StudentID: "a", EcoPoints: 10, Seq: 1},
		{StudentID: "b", EcoPoints: 20, Seq: 2},
	}, 0)

	assert.Equal(t, []string{"b"}, ids(Top(entries, 1)))
	assert.Len(t, Top(entries, 5), 2)
}

func TestNormalizeLimit(t *testing.T) {
	tests := []struct {
		limit, want int
	}{
		{0, 20},
		{-3, 20},
		{7, 7},
		{100, 100},
		{500, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLimit(tt.limit, DefaultLimit, MaxLimit), "limit=%d", tt.limit)
	}
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.StudentID)
	}
	return out
}

func points(entries []Entry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EcoPoints)
	}
	return out
}
