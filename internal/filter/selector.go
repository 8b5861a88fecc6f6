package filter

import (
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// DefaultState is the selection shown when the dashboard first opens
func DefaultState() types.FilterState {
	return types.FilterState{
		Year:         "2023",
		Grade:        "4",
		Subject:      "Русский язык",
		Municipality: All,
		School:       All,
	}
}

// Selector holds the current filter state. School identity only makes sense
// inside one municipality, so switching municipality resets the school.
type Selector struct {
	mu    sync.RWMutex
	state types.FilterState
}

func NewSelector(initial types.FilterState) *Selector {
	return &Selector{state: normalize(initial)}
}

// State returns a copy of the current selection
func (s *Selector) State() types.FilterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Filter returns the current selection as predicates
func (s *Selector) Filter() Filter {
	return FromState(s.State())
}

// Update merges a partial change into the selection and returns the result
func (s *Selector) Update(patch types.FilterPatch) types.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = ApplyPatch(s.state, patch)
	return s.state
}

// ApplyPatch merges patch into prev. When the municipality changes the school
// falls back to All, even if the same patch names a school.
func ApplyPatch(prev types.FilterState, patch types.FilterPatch) types.FilterState {
	next := prev
	if patch.Year != nil {
		next.Year = *patch.Year
	}
	if patch.Grade != nil {
		next.Grade = *patch.Grade
	}
	if patch.Subject != nil {
		next.Subject = *patch.Subject
	}
	if patch.School != nil {
		next.School = *patch.School
	}
	if patch.Municipality != nil {
		next.Municipality = *patch.Municipality
		if normalizeValue(next.Municipality) != normalizeValue(prev.Municipality) {
			next.School = All
		}
	}
	return normalize(next)
}

func normalize(state types.FilterState) types.FilterState {
	return types.FilterState{
		Year:         normalizeValue(state.Year),
		Grade:        normalizeValue(state.Grade),
		Subject:      normalizeValue(state.Subject),
		Municipality: normalizeValue(state.Municipality),
		School:       normalizeValue(state.School),
	}
}

func normalizeValue(v string) string {
	if p := predicate(v); p != nil {
		return *p
	}
	return All
}

// Options lists the values each filter widget can offer
type Options struct {
	Years          []string `json:"years"`
	Grades         []string `json:"grades"`
	Subjects       []string `json:"subjects"`
	Municipalities []string `json:"municipalities"`
	Schools        []string `json:"schools"`
}

// BuildOptions derives widget options from the mark collection. Schools are
// limited to the given municipality unless it is All. Municipalities and
// schools start with the All sentinel.
func BuildOptions(marks []types.MarkRecord, municipality string) Options {
	years := make(map[string]struct{})
	grades := make(map[string]struct{})
	subjects := make(map[string]struct{})
	municipalities := make(map[string]struct{})
	schools := make(map[string]struct{})

	muni := predicate(municipality)
	for _, m := range marks {
		years[m.Year] = struct{}{}
		grades[m.Grade] = struct{}{}
		subjects[m.Subject] = struct{}{}
		municipalities[m.Municipality] = struct{}{}
		if muni == nil || *muni == m.Municipality {
			schools[m.School] = struct{}{}
		}
	}

	return Options{
		Years:          sortedKeys(years),
		Grades:         sortedKeys(grades),
		Subjects:       sortedKeys(subjects),
		Municipalities: append([]string{All}, sortedKeys(municipalities)...),
		Schools:        append([]string{All}, sortedKeys(schools)...),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
