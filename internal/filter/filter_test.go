package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

func strPtr(s string) *string { return &s }

func key(year, grade, subject, municipality, school string) types.RecordKey {
	return types.RecordKey{Year: year, Grade: grade, Subject: subject, Municipality: municipality, School: school}
}

func TestIsAll(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"", true},
		{"Все", true},
		{" Все ", true},
		{"all", true},
		{"ALL", true},
		{"2023", false},
		{"Все школы", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsAll(tt.input))
		})
	}
}

func TestFromState(t *testing.T) {
	f := FromState(types.FilterState{
		Year:         "2023",
		Grade:        All,
		Subject:      "Математика",
		Municipality: "",
		School:       "all",
	})

	require.NotNil(t, f.Year)
	assert.Equal(t, "2023", *f.Year)
	assert.Nil(t, f.Grade)
	require.NotNil(t, f.Subject)
	assert.Equal(t, "Математика", *f.Subject)
	assert.Nil(t, f.Municipality)
	assert.Nil(t, f.School)
	assert.False(t, f.IsEmpty())
	assert.True(t, Filter{}.IsEmpty())
}

func TestFilter_Match(t *testing.T) {
	k := key("2023", "4", "Математика", "Город A", "Школа 1")

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"empty filter matches everything", Filter{}, true},
		{"single matching dimension", Filter{Year: strPtr("2023")}, true},
		{"single mismatching dimension", Filter{Year: strPtr("2022")}, false},
		{"all dimensions match", Filter{
			Year: strPtr("2023"), Grade: strPtr("4"), Subject: strPtr("Математика"),
			Municipality: strPtr("Город A"), School: strPtr("Школа 1"),
		}, true},
		{"one of several mismatches", Filter{
			Year: strPtr("2023"), Municipality: strPtr("Город B"),
		}, false},
		{"exact match only", Filter{School: strPtr("Школа")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filter.Match(k))
		})
	}
}

func TestFilter_StateAndKey(t *testing.T) {
	f := Filter{Year: strPtr("2023"), School: strPtr("Школа 1")}

	assert.Equal(t, types.FilterState{
		Year: "2023", Grade: All, Subject: All, Municipality: All, School: "Школа 1",
	}, f.State())
	assert.Equal(t, "2023|Все|Все|Все|Школа 1", f.Key())
	assert.Equal(t, f.Key(), FromState(f.State()).Key())
}

func TestFilter_Conditions(t *testing.T) {
	f := Filter{School: strPtr("Школа 1"), Year: strPtr("2023")}

	assert.Equal(t, []Condition{
		{Column: "year", Value: "2023"},
		{Column: "school", Value: "Школа 1"},
	}, f.Conditions())
	assert.Empty(t, Filter{}.Conditions())
}

func TestApply(t *testing.T) {
	marks := []types.MarkRecord{
		{RecordKey: key("2023", "4", "Математика", "Город A", "Школа 1"), Participants: 10},
		{RecordKey: key("2023", "4", "Математика", "Город B", "Школа 1"), Participants: 20},
		{RecordKey: key("2022", "4", "Математика", "Город A", "Школа 2"), Participants: 30},
	}
	scores := []types.ScoreRecord{
		{RecordKey: key("2023", "4", "Математика", "Город A", "Школа 1"), Participants: 10},
		{RecordKey: key("2022", "4", "Математика", "Город A", "Школа 2"), Participants: 30},
	}
	bias := []types.BiasRecord{
		{RecordKey: key("2023", "4", "Математика", "Город B", "Школа 1")},
	}

	f := Filter{Year: strPtr("2023")}
	assert.Len(t, ApplyMarks(marks, f), 2)
	assert.Len(t, ApplyScores(scores, f), 1)
	assert.Len(t, ApplyBias(bias, f), 1)

	f = Filter{Municipality: strPtr("Город A"), School: strPtr("Школа 1")}
	got := ApplyMarks(marks, f)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].Participants)
	assert.Empty(t, ApplyBias(bias, f))

	assert.Len(t, ApplyMarks(marks, Filter{}), 3)
}
