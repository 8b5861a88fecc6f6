package filter

import (
	"strings"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// All is the sentinel the dashboard uses for "no restriction"
const All = "Все"

// IsAll reports whether a raw filter value means "no restriction".
// Empty strings and the latin "all" are accepted alongside the sentinel.
func IsAll(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == All || strings.EqualFold(v, "all")
}

// Filter restricts records by exact match on each dimension. A nil field
// places no restriction on that dimension.
type Filter struct {
	Year         *string
	Grade        *string
	Subject      *string
	Municipality *string
	School       *string
}

// FromState converts sentinel strings into optional predicates
func FromState(state types.FilterState) Filter {
	return Filter{
		Year:         predicate(state.Year),
		Grade:        predicate(state.Grade),
		Subject:      predicate(state.Subject),
		Municipality: predicate(state.Municipality),
		School:       predicate(state.School),
	}
}

func predicate(value string) *string {
	if IsAll(value) {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

// IsEmpty reports whether no dimension is restricted
func (f Filter) IsEmpty() bool {
	return f.Year == nil && f.Grade == nil && f.Subject == nil &&
		f.Municipality == nil && f.School == nil
}

// Match reports whether a key passes every present predicate
func (f Filter) Match(k types.RecordKey) bool {
	return matches(f.Year, k.Year) &&
		matches(f.Grade, k.Grade) &&
		matches(f.Subject, k.Subject) &&
		matches(f.Municipality, k.Municipality) &&
		matches(f.School, k.School)
}

func matches(want *string, got string) bool {
	return want == nil || *want == got
}

// State renders the filter back into sentinel form
func (f Filter) State() types.FilterState {
	return types.FilterState{
		Year:         valueOrAll(f.Year),
		Grade:        valueOrAll(f.Grade),
		Subject:      valueOrAll(f.Subject),
		Municipality: valueOrAll(f.Municipality),
		School:       valueOrAll(f.School),
	}
}

func valueOrAll(v *string) string {
	if v == nil {
		return All
	}
	return *v
}

// Key is a stable string form of the filter, usable as a cache key
func (f Filter) Key() string {
	s := f.State()
	return strings.Join([]string{s.Year, s.Grade, s.Subject, s.Municipality, s.School}, "|")
}

// Conditions returns the restricted dimensions as column/value pairs in a
// fixed order, for building SQL predicates.
func (f Filter) Conditions() []Condition {
	conds := make([]Condition, 0, 5)
	add := func(column string, v *string) {
		if v != nil {
			conds = append(conds, Condition{Column: column, Value: *v})
		}
	}
	add("year", f.Year)
	add("grade", f.Grade)
	add("subject", f.Subject)
	add("municipality", f.Municipality)
	add("school", f.School)
	return conds
}

// Condition is a single exact-match restriction
type Condition struct {
	Column string
	Value  string
}

// ApplyMarks returns the mark records matching f
func ApplyMarks(records []types.MarkRecord, f Filter) []types.MarkRecord {
	if f.IsEmpty() {
		return records
	}
	out := make([]types.MarkRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r.RecordKey) {
			out = append(out, r)
		}
	}
	return out
}

// ApplyScores returns the score records matching f
func ApplyScores(records []types.ScoreRecord, f Filter) []types.ScoreRecord {
	if f.IsEmpty() {
		return records
	}
	out := make([]types.ScoreRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r.RecordKey) {
			out = append(out, r)
		}
	}
	return out
}

// ApplyBias returns the bias records matching f
func ApplyBias(records []types.BiasRecord, f Filter) []types.BiasRecord {
	if f.IsEmpty() {
		return records
	}
	out := make([]types.BiasRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r.RecordKey) {
			out = append(out, r)
		}
	}
	return out
}
