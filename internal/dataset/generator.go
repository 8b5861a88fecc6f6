package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// Dataset is one complete materialisation of the three collections
type Dataset struct {
	Marks  []types.MarkRecord  `json:"marks"`
	Scores []types.ScoreRecord `json:"scores"`
	Bias   []types.BiasRecord  `json:"bias"`
}

// Rows returns the total number of rows over all collections
func (d *Dataset) Rows() int {
	return len(d.Marks) + len(d.Scores) + len(d.Bias)
}

// GeneratorConfig shapes the synthetic dataset
type GeneratorConfig struct {
	Seed                   int64          `yaml:"seed"`
	Years                  []string       `yaml:"years" validate:"min=1"`
	Grades                 []string       `yaml:"grades" validate:"min=1"`
	Subjects               map[string]int `yaml:"subjects" validate:"min=1"` // subject -> max primary score
	Municipalities         []string       `yaml:"municipalities" validate:"min=1"`
	SchoolsPerMunicipality int            `yaml:"schools_per_municipality" validate:"min=1"`
	MinParticipants        int            `yaml:"min_participants" validate:"min=0"`
	MaxParticipants        int            `yaml:"max_participants" validate:"gtefield=MinParticipants"`
}

// DefaultGeneratorConfig mirrors the shape of the regional VPR result sets
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:   2023,
		Years:  []string{"2022", "2023", "2024"},
		Grades: []string{"4", "5", "6", "7", "8"},
		Subjects: map[string]int{
			"Русский язык":   38,
			"Математика":     20,
			"Окружающий мир": 32,
			"История":        15,
			"Биология":       29,
		},
		Municipalities: []string{
			"Городской округ Северный",
			"Заречный район",
			"Озёрский район",
			"Приморский район",
			"Степной район",
		},
		SchoolsPerMunicipality: 12,
		MinParticipants:        8,
		MaxParticipants:        180,
	}
}

// BiasIndicators are the indicator names produced for every bias record
var BiasIndicators = []string{
	"overstated_marks",
	"understated_marks",
	"score_mark_mismatch",
	"suspicious_peak",
}

// Generate builds a well-formed synthetic dataset: every mark row sums to
// 100 and every score row's percentages sum to 100. The same config always
// produces the same dataset.
func Generate(cfg GeneratorConfig) *Dataset {
	rng := rand.New(rand.NewSource(cfg.Seed))
	subjects := sortedSubjects(cfg.Subjects)

	ds := &Dataset{}
	for _, year := range cfg.Years {
		for _, grade := range cfg.Grades {
			for _, subject := range subjects {
				maxScore := cfg.Subjects[subject]
				for mi, municipality := range cfg.Municipalities {
					for s := 1; s <= cfg.SchoolsPerMunicipality; s++ {
						key := types.RecordKey{
							Year:         year,
							Grade:        grade,
							Subject:      subject,
							Municipality: municipality,
							School:       fmt.Sprintf("МБОУ СОШ №%d", mi*cfg.SchoolsPerMunicipality+s),
						}
						participants := cfg.MinParticipants
						if span := cfg.MaxParticipants - cfg.MinParticipants; span > 0 {
							participants += rng.Intn(span + 1)
						}
						// school "strength" shifts both the mark and the score distribution
						strength := rng.Float64()

						ds.Marks = append(ds.Marks, generateMarks(rng, key, participants, strength))
						ds.Scores = append(ds.Scores, generateScores(rng, key, participants, maxScore, strength))
						ds.Bias = append(ds.Bias, generateBias(rng, key))
					}
				}
			}
		}
	}
	return ds
}

func generateMarks(rng *rand.Rand, key types.RecordKey, participants int, strength float64) types.MarkRecord {
	weights := []float64{
		0.05 + 0.25*(1-strength)*rng.Float64(),
		0.25 + 0.35*rng.Float64(),
		0.25 + 0.35*rng.Float64(),
		0.05 + 0.35*strength*rng.Float64(),
	}
	pcts := normalizePercents(weights)
	return types.MarkRecord{
		RecordKey:    key,
		Participants: participants,
		Mark2:        pcts[0],
		Mark3:        pcts[1],
		Mark4:        pcts[2],
		Mark5:        pcts[3],
	}
}

func generateScores(rng *rand.Rand, key types.RecordKey, participants, maxScore int, strength float64) types.ScoreRecord {
	mean := float64(maxScore) * (0.35 + 0.45*strength)
	sd := math.Max(1, float64(maxScore)*(0.12+0.08*rng.Float64()))

	weights := make([]float64, maxScore+1)
	for score := range weights {
		z := (float64(score) - mean) / sd
		weights[score] = math.Exp(-0.5 * z * z)
	}
	pcts := normalizePercents(weights)

	scores := make(map[int]float64)
	for score, pct := range pcts {
		// rows only report scores somebody actually got
		if pct > 0 {
			scores[score] = pct
		}
	}
	return types.ScoreRecord{
		RecordKey:    key,
		Participants: participants,
		Scores:       scores,
	}
}

func generateBias(rng *rand.Rand, key types.RecordKey) types.BiasRecord {
	indicators := make(map[string]float64, len(BiasIndicators))
	for _, name := range BiasIndicators {
		v := 0.0
		// most schools show no sign of non-objectivity
		if rng.Float64() < 0.2 {
			v = roundTo2(rng.Float64() * 40)
		}
		indicators[name] = v
	}
	return types.BiasRecord{RecordKey: key, Indicators: indicators}
}

// normalizePercents scales weights to percentages with two decimals that
// add up to exactly 100; the largest bucket absorbs the rounding remainder.
func normalizePercents(weights []float64) []float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	out := make([]float64, len(weights))
	if total <= 0 {
		return out
	}

	sum := 0.0
	largest := 0
	for i, w := range weights {
		out[i] = roundTo2(w / total * 100)
		sum += out[i]
		if out[i] > out[largest] {
			largest = i
		}
	}
	out[largest] = roundTo2(out[largest] + 100 - sum)
	return out
}

func roundTo2(x float64) float64 {
	return math.Round(x*100) / 100
}

func sortedSubjects(subjects map[string]int) []string {
	names := make([]string, 0, len(subjects))
	for name := range subjects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
