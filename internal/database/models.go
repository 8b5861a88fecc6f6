package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DatasetInfo identifies one loaded dataset. The ID changes on every load and
// is what downstream caches key on.
type DatasetInfo struct {
	ID        string    `json:"id" db:"id"`
	MarkRows  int       `json:"mark_rows" db:"mark_rows"`
	ScoreRows int       `json:"score_rows" db:"score_rows"`
	BiasRows  int       `json:"bias_rows" db:"bias_rows"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewDatasetInfo creates dataset metadata with a generated ID
func NewDatasetInfo(marks, scores, bias int) *DatasetInfo {
	return &DatasetInfo{
		ID:        uuid.New().String(),
		MarkRows:  marks,
		ScoreRows: scores,
		BiasRows:  bias,
		CreatedAt: time.Now().UTC(),
	}
}

// Counts holds the row count of every collection
type Counts struct {
	Marks  int `json:"marks"`
	Scores int `json:"scores"`
	Bias   int `json:"bias"`
}

// Dimension is a filterable column
type Dimension string

const (
	DimYear         Dimension = "year"
	DimGrade        Dimension = "grade"
	DimSubject      Dimension = "subject"
	DimMunicipality Dimension = "municipality"
	DimSchool       Dimension = "school"
)

// ParseDimension maps user input onto a known column
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case DimYear, DimGrade, DimSubject, DimMunicipality, DimSchool:
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}
