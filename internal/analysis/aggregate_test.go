package analysis

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

func markRecord(participants int, m2, m3, m4, m5 float64) types.MarkRecord {
	return types.MarkRecord{
		RecordKey:    types.RecordKey{Year: "2023", Grade: "4", Subject: "Математика", Municipality: "Город A", School: "Школа 1"},
		Participants: participants,
		Mark2:        m2,
		Mark3:        m3,
		Mark4:        m4,
		Mark5:        m5,
	}
}

func scoreRecord(participants int, scores map[int]float64) types.ScoreRecord {
	return types.ScoreRecord{
		RecordKey:    types.RecordKey{Year: "2023", Grade: "4", Subject: "Математика", Municipality: "Город A", School: "Школа 1"},
		Participants: participants,
		Scores:       scores,
	}
}

func shareValues(shares []types.MarkShare) []float64 {
	values := make([]float64, len(shares))
	for i, s := range shares {
		values[i] = s.Value
	}
	return values
}

func TestAggregateMarks(t *testing.T) {
	tests := []struct {
		name     string
		records  []types.MarkRecord
		expected []float64
	}{
		{
			name: "weights rows by participants",
			records: []types.MarkRecord{
				markRecord(10, 0, 0, 0, 100),
				markRecord(90, 100, 0, 0, 0),
			},
			expected: []float64{90, 0, 0, 10},
		},
		{
			name: "pools two schools of different size",
			records: []types.MarkRecord{
				markRecord(200, 10, 20, 40, 30),
				markRecord(50, 0, 0, 0, 100),
			},
			expected: []float64{8, 16, 32, 44},
		},
		{
			name: "single row keeps its own percentages",
			records: []types.MarkRecord{
				markRecord(37, 12.5, 25.25, 40, 22.25),
			},
			expected: []float64{12.5, 25.25, 40, 22.25},
		},
		{
			name: "zero participants everywhere yields zeros",
			records: []types.MarkRecord{
				markRecord(0, 10, 20, 30, 40),
			},
			expected: []float64{0, 0, 0, 0},
		},
		{
			name: "zero participant row contributes no weight",
			records: []types.MarkRecord{
				markRecord(0, 100, 0, 0, 0),
				markRecord(40, 0, 50, 50, 0),
			},
			expected: []float64{0, 50, 50, 0},
		},
		{
			name: "rounds to two decimals",
			records: []types.MarkRecord{
				markRecord(3, 100, 0, 0, 0),
				markRecord(3, 0, 100, 0, 0),
				markRecord(3, 0, 0, 100, 0),
			},
			expected: []float64{33.33, 33.33, 33.33, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AggregateMarks(tt.records)
			require.Len(t, result, 4)
			assert.InDeltaSlice(t, tt.expected, shareValues(result), 1e-9)
		})
	}
}

func TestAggregateMarks_LabelsAndColors(t *testing.T) {
	result := AggregateMarks([]types.MarkRecord{markRecord(10, 25, 25, 25, 25)})

	require.Len(t, result, 4)
	assert.Equal(t, types.MarkShare{Name: "2", Value: 25, Color: "#ef4444"}, result[0])
	assert.Equal(t, types.MarkShare{Name: "3", Value: 25, Color: "#f59e0b"}, result[1])
	assert.Equal(t, types.MarkShare{Name: "4", Value: 25, Color: "#10b981"}, result[2])
	assert.Equal(t, types.MarkShare{Name: "5", Value: 25, Color: "#3b82f6"}, result[3])
}

func TestAggregateMarks_Empty(t *testing.T) {
	assert.Empty(t, AggregateMarks(nil))
	assert.Empty(t, AggregateMarks([]types.MarkRecord{}))
}

func TestAggregateMarks_Conservation(t *testing.T) {
	records := []types.MarkRecord{
		markRecord(17, 11.76, 29.41, 35.29, 23.54),
		markRecord(233, 3.1, 40.2, 41.5, 15.2),
		markRecord(91, 0, 12.09, 54.95, 32.96),
		markRecord(5, 20, 20, 20, 40),
		markRecord(1204, 7.77, 33.33, 33.34, 25.56),
	}

	sum := 0.0
	for _, s := range AggregateMarks(records) {
		sum += s.Value
	}
	assert.InDelta(t, 100.0, sum, 0.02)
}

func TestAggregateMarks_NoNonFiniteValues(t *testing.T) {
	records := []types.MarkRecord{
		markRecord(0, 50, 50, 0, 0),
		markRecord(0, 0, 0, 0, 100),
	}

	for _, s := range AggregateMarks(records) {
		assert.False(t, math.IsNaN(s.Value), "mark %s is NaN", s.Name)
		assert.False(t, math.IsInf(s.Value, 0), "mark %s is Inf", s.Name)
		assert.Equal(t, 0.0, s.Value)
	}
}

func TestAggregateMarks_OrderIndependent(t *testing.T) {
	a := markRecord(120, 5, 25, 45, 25)
	b := markRecord(33, 15, 30, 30, 25)
	c := markRecord(7, 0, 14.29, 42.86, 42.85)

	first := AggregateMarks([]types.MarkRecord{a, b, c})
	second := AggregateMarks([]types.MarkRecord{c, a, b})
	assert.Equal(t, first, second)
}

func TestAggregateScores(t *testing.T) {
	tests := []struct {
		name     string
		records  []types.ScoreRecord
		expected []types.ScoreShare
	}{
		{
			name: "weights rows by participants",
			records: []types.ScoreRecord{
				scoreRecord(10, map[int]float64{2: 100}),
				scoreRecord(90, map[int]float64{0: 50, 1: 50}),
			},
			expected: []types.ScoreShare{
				{Score: 0, Percentage: 45},
				{Score: 1, Percentage: 45},
				{Score: 2, Percentage: 10},
			},
		},
		{
			name: "only zero score observed",
			records: []types.ScoreRecord{
				scoreRecord(12, map[int]float64{0: 100}),
			},
			expected: []types.ScoreShare{{Score: 0, Percentage: 100}},
		},
		{
			name: "no score keys at all",
			records: []types.ScoreRecord{
				scoreRecord(12, map[int]float64{}),
			},
			expected: []types.ScoreShare{{Score: 0, Percentage: 0}},
		},
		{
			name: "zero participants yields zero percentages over the observed range",
			records: []types.ScoreRecord{
				scoreRecord(0, map[int]float64{0: 40, 2: 60}),
			},
			expected: []types.ScoreShare{
				{Score: 0, Percentage: 0},
				{Score: 1, Percentage: 0},
				{Score: 2, Percentage: 0},
			},
		},
		{
			name: "participants counted once per record",
			records: []types.ScoreRecord{
				scoreRecord(50, map[int]float64{0: 20, 1: 30, 2: 50}),
				scoreRecord(150, map[int]float64{1: 100}),
			},
			expected: []types.ScoreShare{
				{Score: 0, Percentage: 5},
				{Score: 1, Percentage: 82.5},
				{Score: 2, Percentage: 12.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AggregateScores(tt.records))
		})
	}
}

func TestAggregateScores_Densification(t *testing.T) {
	records := []types.ScoreRecord{
		scoreRecord(20, map[int]float64{0: 10, 5: 40}),
		scoreRecord(30, map[int]float64{5: 50, 10: 50}),
	}

	result := AggregateScores(records)
	require.Len(t, result, 11)

	for i, share := range result {
		assert.Equal(t, i, share.Score)
	}
	for _, missing := range []int{1, 2, 3, 4, 6, 7, 8, 9} {
		assert.Equal(t, 0.0, result[missing].Percentage, "score %d", missing)
	}
	// 0: 2/50, 5: (8+15)/50, 10: 15/50
	assert.Equal(t, 4.0, result[0].Percentage)
	assert.Equal(t, 46.0, result[5].Percentage)
	assert.Equal(t, 30.0, result[10].Percentage)
}

func TestAggregateScores_NegativeKeysStayOffAxis(t *testing.T) {
	records := []types.ScoreRecord{
		scoreRecord(10, map[int]float64{-1: 50, 1: 50}),
	}

	result := AggregateScores(records)
	assert.Equal(t, []types.ScoreShare{
		{Score: 0, Percentage: 0},
		{Score: 1, Percentage: 50},
	}, result)
}

func TestAggregateScores_Empty(t *testing.T) {
	assert.Empty(t, AggregateScores(nil))
	assert.Empty(t, AggregateScores([]types.ScoreRecord{}))
}

func TestAggregation_Deterministic(t *testing.T) {
	marks := []types.MarkRecord{
		markRecord(113, 7.08, 31.86, 38.94, 22.12),
		markRecord(61, 4.92, 26.23, 42.62, 26.23),
	}
	scores := []types.ScoreRecord{
		scoreRecord(113, map[int]float64{3: 12.39, 7: 40.71, 11: 46.9}),
		scoreRecord(61, map[int]float64{0: 1.64, 4: 32.79, 9: 65.57}),
	}

	wantMarks := AggregateMarks(marks)
	wantScores := AggregateScores(scores)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, wantMarks, AggregateMarks(marks))
			assert.Equal(t, wantScores, AggregateScores(scores))
		}()
	}
	wg.Wait()
}

func TestScoreAccumulator(t *testing.T) {
	acc := NewScoreAccumulator()
	assert.Equal(t, 0, acc.MaxScore())

	acc.Add(3, 1.5)
	acc.Add(3, 2.5)
	acc.Add(1, 4)
	acc.Add(-2, 1)

	assert.Equal(t, 4.0, acc.Get(3))
	assert.Equal(t, 4.0, acc.Get(1))
	assert.Equal(t, 0.0, acc.Get(2))
	assert.Equal(t, 3, acc.MaxScore())
}
