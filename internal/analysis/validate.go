package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// markSumTolerance is how far a row's four mark percentages may drift from
// 100 before the row is reported.
const markSumTolerance = 0.5

// Issue describes one data-quality problem found in a source row
type Issue struct {
	Collection string          `json:"collection"`
	Key        types.RecordKey `json:"key"`
	Field      string          `json:"field"`
	Message    string          `json:"message"`
}

// Validator is an optional pass over the source collections. The aggregation
// functions never call it and keep rendering whatever data they are given.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// Validate reports malformed rows in both collections. The result is sorted
// by collection, key and field so repeated runs are comparable.
func (val *Validator) Validate(marks []types.MarkRecord, scores []types.ScoreRecord) []Issue {
	issues := make([]Issue, 0)

	for _, m := range marks {
		issues = append(issues, val.structIssues("marks", m.RecordKey, m)...)

		sum := m.Mark2 + m.Mark3 + m.Mark4 + m.Mark5
		if math.Abs(sum-100) > markSumTolerance {
			issues = append(issues, Issue{
				Collection: "marks",
				Key:        m.RecordKey,
				Field:      "marks",
				Message:    fmt.Sprintf("mark percentages sum to %.2f, expected 100", sum),
			})
		}
		if m.Participants == 0 && sum > 0 {
			issues = append(issues, Issue{
				Collection: "marks",
				Key:        m.RecordKey,
				Field:      "participants",
				Message:    "zero participants with nonzero mark percentages",
			})
		}
	}

	for _, s := range scores {
		issues = append(issues, val.structIssues("scores", s.RecordKey, s)...)

		sum := 0.0
		for score, pct := range s.Scores {
			sum += pct
			if score < 0 {
				issues = append(issues, Issue{
					Collection: "scores",
					Key:        s.RecordKey,
					Field:      "scores",
					Message:    fmt.Sprintf("negative score key %d", score),
				})
			}
		}
		if s.Participants == 0 && sum > 0 {
			issues = append(issues, Issue{
				Collection: "scores",
				Key:        s.RecordKey,
				Field:      "participants",
				Message:    "zero participants with nonzero score percentages",
			})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		if ka, kb := keyString(a.Key), keyString(b.Key); ka != kb {
			return ka < kb
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.Message < b.Message
	})

	return issues
}

// structIssues runs the struct-tag range checks on one record
func (val *Validator) structIssues(collection string, key types.RecordKey, record interface{}) []Issue {
	err := val.v.Struct(record)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Issue{{Collection: collection, Key: key, Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, Issue{
			Collection: collection,
			Key:        key,
			Field:      fe.Field(),
			Message:    fmt.Sprintf("value %v violates %s=%s", fe.Value(), fe.Tag(), fe.Param()),
		})
	}
	return issues
}

func keyString(k types.RecordKey) string {
	return k.Year + "\x00" + k.Grade + "\x00" + k.Subject + "\x00" + k.Municipality + "\x00" + k.School
}
