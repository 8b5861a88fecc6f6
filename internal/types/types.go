package types

// RecordKey identifies one row in any of the three collections
type RecordKey struct {
	Year         string `json:"year" db:"year"`
	Grade        string `json:"grade" db:"grade"`
	Subject      string `json:"subject" db:"subject"`
	Municipality string `json:"municipality" db:"municipality"`
	School       string `json:"school" db:"school"`
}

// MarkRecord holds row-local mark percentages for one school/subject/grade/year
type MarkRecord struct {
	RecordKey
	Participants int     `json:"participants" db:"participants" validate:"min=0"`
	Mark2        float64 `json:"mark2" db:"mark2" validate:"min=0,max=100"`
	Mark3        float64 `json:"mark3" db:"mark3" validate:"min=0,max=100"`
	Mark4        float64 `json:"mark4" db:"mark4" validate:"min=0,max=100"`
	Mark5        float64 `json:"mark5" db:"mark5" validate:"min=0,max=100"`
}

// ScoreRecord holds row-local percentages per primary score value
type ScoreRecord struct {
	RecordKey
	Participants int             `json:"participants" db:"participants" validate:"min=0"`
	Scores       map[int]float64 `json:"scores" db:"scores" validate:"dive,min=0,max=100"`
}

// BiasRecord carries upstream non-objectivity indicators. The values are
// opaque to the aggregation engine.
type BiasRecord struct {
	RecordKey
	Indicators map[string]float64 `json:"indicators" db:"indicators"`
}

// MarkShare is one bar of the mark distribution chart
type MarkShare struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// ScoreShare is one bar of the primary score distribution chart
type ScoreShare struct {
	Score      int     `json:"score"`
	Percentage float64 `json:"percentage"`
}

// FilterState is the active dashboard selection. Every field uses the
// "Все" sentinel for "no restriction".
type FilterState struct {
	Year         string `json:"year" form:"year"`
	Grade        string `json:"grade" form:"grade"`
	Subject      string `json:"subject" form:"subject"`
	Municipality string `json:"municipality" form:"municipality"`
	School       string `json:"school" form:"school"`
}

// FilterPatch is a partial FilterState update; nil fields are left untouched
type FilterPatch struct {
	Year         *string `json:"year,omitempty"`
	Grade        *string `json:"grade,omitempty"`
	Subject      *string `json:"subject,omitempty"`
	Municipality *string `json:"municipality,omitempty"`
	School       *string `json:"school,omitempty"`
}

// Dashboard is the combined payload rendered by the front-end
type Dashboard struct {
	Filters FilterState  `json:"filters"`
	Marks   []MarkShare  `json:"marks"`
	Scores  []ScoreShare `json:"scores"`
	Bias    []BiasRecord `json:"bias"`
	Records int          `json:"records"`
}
