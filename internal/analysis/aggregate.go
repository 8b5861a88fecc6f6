package analysis

import (
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// markBars fixes the output order and styling of the mark chart
var markBars = [4]struct {
	name  string
	color string
}{
	{"2", "#ef4444"},
	{"3", "#f59e0b"},
	{"4", "#10b981"},
	{"5", "#3b82f6"},
}

// AggregateMarks pools row-local mark percentages into population-level
// percentages. Each row is weighted by its participant count before pooling.
// An empty input yields an empty result; otherwise exactly four shares are
// returned in mark order 2, 3, 4, 5.
func AggregateMarks(records []types.MarkRecord) []types.MarkShare {
	if len(records) == 0 {
		return []types.MarkShare{}
	}

	var counts [4]float64
	total := 0.0
	for _, r := range records {
		p := float64(r.Participants)
		total += p
		counts[0] += weightedCount(r.Mark2, p)
		counts[1] += weightedCount(r.Mark3, p)
		counts[2] += weightedCount(r.Mark4, p)
		counts[3] += weightedCount(r.Mark5, p)
	}

	shares := make([]types.MarkShare, len(markBars))
	for i, bar := range markBars {
		shares[i] = types.MarkShare{
			Name:  bar.name,
			Value: percentOf(counts[i], total),
			Color: bar.color,
		}
	}
	return shares
}

// AggregateScores pools row-local primary score percentages and returns one
// share for every score from 0 to the highest score observed, so the chart
// axis has no gaps. Scores no row reports are present with 0%.
func AggregateScores(records []types.ScoreRecord) []types.ScoreShare {
	if len(records) == 0 {
		return []types.ScoreShare{}
	}

	counts := NewScoreAccumulator()
	total := 0.0
	for _, r := range records {
		p := float64(r.Participants)
		total += p
		for score, pct := range r.Scores {
			counts.Add(score, weightedCount(pct, p))
		}
	}

	maxScore := counts.MaxScore()
	shares := make([]types.ScoreShare, maxScore+1)
	for score := 0; score <= maxScore; score++ {
		shares[score] = types.ScoreShare{
			Score:      score,
			Percentage: percentOf(counts.Get(score), total),
		}
	}
	return shares
}

// ScoreAccumulator sums weighted participant counts per score value
type ScoreAccumulator struct {
	data     map[int]float64
	maxScore int
}

func NewScoreAccumulator() *ScoreAccumulator {
	return &ScoreAccumulator{data: make(map[int]float64)}
}

func (sa *ScoreAccumulator) Add(score int, count float64) {
	sa.data[score] += count
	if score > sa.maxScore {
		sa.maxScore = score
	}
}

func (sa *ScoreAccumulator) Get(score int) float64 {
	return sa.data[score]
}

// MaxScore is the highest score added so far, or 0 when none was positive
func (sa *ScoreAccumulator) MaxScore() int {
	return sa.maxScore
}
