package dataset

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:                   7,
		Years:                  []string{"2023"},
		Grades:                 []string{"4", "5"},
		Subjects:               map[string]int{"Математика": 20, "Русский язык": 38},
		Municipalities:         []string{"Город A", "Город B"},
		SchoolsPerMunicipality: 3,
		MinParticipants:        10,
		MaxParticipants:        50,
	}
}

func TestGenerate_Shape(t *testing.T) {
	ds := Generate(smallConfig())

	// 1 year * 2 grades * 2 subjects * 2 municipalities * 3 schools
	assert.Len(t, ds.Marks, 24)
	assert.Len(t, ds.Scores, 24)
	assert.Len(t, ds.Bias, 24)
	assert.Equal(t, 72, ds.Rows())

	for _, m := range ds.Marks {
		assert.GreaterOrEqual(t, m.Participants, 10)
		assert.LessOrEqual(t, m.Participants, 50)
		sum := m.Mark2 + m.Mark3 + m.Mark4 + m.Mark5
		assert.InDelta(t, 100, sum, 1e-6, "marks of %v", m.RecordKey)
	}

	for _, s := range ds.Scores {
		sum := 0.0
		for score, pct := range s.Scores {
			assert.GreaterOrEqual(t, score, 0)
			assert.Greater(t, pct, 0.0)
			sum += pct
		}
		assert.InDelta(t, 100, sum, 1e-6, "scores of %v", s.RecordKey)

		maxScore := 20
		if s.Subject == "Русский язык" {
			maxScore = 38
		}
		for score := range s.Scores {
			assert.LessOrEqual(t, score, maxScore)
		}
	}

	for _, b := range ds.Bias {
		assert.Len(t, b.Indicators, len(BiasIndicators))
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(smallConfig())
	b := Generate(smallConfig())
	assert.Equal(t, a, b)

	cfg := smallConfig()
	cfg.Seed = 8
	c := Generate(cfg)
	assert.NotEqual(t, a.Marks, c.Marks)
}

func TestGenerate_SchoolNamesUniquePerRow(t *testing.T) {
	ds := Generate(smallConfig())

	seen := make(map[string]string)
	for _, m := range ds.Marks {
		if muni, ok := seen[m.School]; ok {
			assert.Equal(t, muni, m.Municipality, "school %s spans municipalities", m.School)
		}
		seen[m.School] = m.Municipality
	}
	assert.Len(t, seen, 6)
}

func TestNormalizePercents(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
	}{
		{"thirds", []float64{1, 1, 1}},
		{"skewed", []float64{0.001, 5, 7, 0.3}},
		{"single", []float64{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := normalizePercents(tt.weights)
			sum := 0.0
			for _, v := range out {
				sum += v
				assert.Equal(t, v, math.Round(v*100)/100)
			}
			assert.InDelta(t, 100, sum, 1e-9)
		})
	}

	assert.Equal(t, []float64{0, 0}, normalizePercents([]float64{0, 0}))
}

func TestLoader_RunsAllStages(t *testing.T) {
	var (
		mu     sync.Mutex
		stages []int
		calls  int
		atCall int
	)

	var l *Loader
	l = NewLoader(0, func(ctx context.Context) error {
		calls++
		atCall = l.Progress().Stage
		return nil
	})
	l.OnStage(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, p.Stage)
	})

	assert.False(t, l.Ready())
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, atCall)
	assert.True(t, l.Ready())

	p := l.Progress()
	assert.True(t, p.Done)
	assert.Equal(t, 100.0, p.Percent)
	assert.Equal(t, len(Stages)-1, p.Stage)
	assert.Empty(t, p.Error)

	mu.Lock()
	defer mu.Unlock()
	// every stage once plus the final notification
	assert.Equal(t, []int{0, 1, 2, 3, 4, 4}, stages)
}

func TestLoader_StageMessages(t *testing.T) {
	var during string
	var l *Loader
	l = NewLoader(0, func(ctx context.Context) error {
		during = l.Progress().Message
		return nil
	})

	var messages []string
	l.OnStage(func(p Progress) {
		messages = append(messages, p.Message)
	})
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, "Загрузка массива результатов (150,000+ строк)...", during)
	assert.Equal(t, []string{
		"Установка соединения с базой данных...",
		"Загрузка массива результатов (150,000+ строк)...",
		"Индексация данных по муниципалитетам...",
		"Расчет маркеров необъективности...",
		"Подготовка визуализаций...",
	}, messages[:len(Stages)])
}

func TestLoader_ProgressMonotone(t *testing.T) {
	l := NewLoader(0, nil)

	var percents []float64
	l.OnStage(func(p Progress) {
		percents = append(percents, p.Percent)
	})
	require.NoError(t, l.Run(context.Background()))

	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
	assert.Equal(t, []float64{20, 40, 60, 80, 100, 100}, percents)
}

func TestLoader_MaterializeError(t *testing.T) {
	boom := errors.New("disk on fire")
	l := NewLoader(0, func(ctx context.Context) error { return boom })

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	p := l.Progress()
	assert.True(t, p.Done)
	assert.Equal(t, 1, p.Stage)
	assert.Contains(t, p.Error, "disk on fire")
	assert.False(t, l.Ready())
}

func TestLoader_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	materialized := make(chan struct{})

	l := NewLoader(time.Hour, func(ctx context.Context) error {
		close(materialized)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	// stage 0 waits the full delay, so materialisation has not happened yet
	select {
	case <-materialized:
		t.Fatal("materialised before stage 1")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loader did not stop on cancel")
	}
	assert.False(t, l.Ready())
	assert.True(t, l.Progress().Done)
}

func TestLoader_RunTwice(t *testing.T) {
	calls := 0
	l := NewLoader(0, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, l.Run(context.Background()))
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1, calls)

	<-l.Done()
}
