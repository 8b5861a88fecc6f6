package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stages are the messages shown on the loading screen, in order
var Stages = []string{
	"Установка соединения с базой данных...",
	"Загрузка массива результатов (150,000+ строк)...",
	"Индексация данных по муниципалитетам...",
	"Расчет маркеров необъективности...",
	"Подготовка визуализаций...",
}

// materializeStage is the stage during which the collections are produced
const materializeStage = 1

// Progress is a snapshot of the loader state
type Progress struct {
	Stage   int     `json:"stage"`
	Message string  `json:"message"`
	Percent float64 `json:"percent"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// MaterializeFunc produces the dataset. It runs exactly once per Run.
type MaterializeFunc func(ctx context.Context) error

// Loader walks through the loading stages and materialises the data on the
// way. Stage timing is cosmetic: the data is the same whatever the delay.
type Loader struct {
	delay       time.Duration
	materialize MaterializeFunc
	onStage     func(Progress)

	mu       sync.RWMutex
	progress Progress
	err      error
	done     chan struct{}
	once     sync.Once
}

// NewLoader creates a loader that pauses delay after every stage
func NewLoader(delay time.Duration, materialize MaterializeFunc) *Loader {
	return &Loader{
		delay:       delay,
		materialize: materialize,
		progress:    stageProgress(0),
		done:        make(chan struct{}),
	}
}

// OnStage registers a callback invoked whenever the loader enters a stage or finishes
func (l *Loader) OnStage(fn func(Progress)) {
	l.mu.Lock()
	l.onStage = fn
	l.mu.Unlock()
}

func stageProgress(stage int) Progress {
	return Progress{
		Stage:   stage,
		Message: Stages[stage],
		Percent: float64((stage+1)*100) / float64(len(Stages)),
	}
}

// Run executes every stage. It returns the materialisation error, or the
// context error if ctx is cancelled first. Calling Run more than once is a no-op.
func (l *Loader) Run(ctx context.Context) error {
	ran := false
	l.once.Do(func() {
		ran = true
		l.finish(l.run(ctx))
	})
	if !ran {
		<-l.done
	}
	return l.Err()
}

func (l *Loader) run(ctx context.Context) error {
	for stage := range Stages {
		l.enter(stage)

		if stage == materializeStage && l.materialize != nil {
			if err := l.materialize(ctx); err != nil {
				return fmt.Errorf("materialise dataset: %w", err)
			}
		}

		if err := l.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) wait(ctx context.Context) error {
	if l.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(l.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Loader) enter(stage int) {
	l.mu.Lock()
	l.progress = stageProgress(stage)
	p, fn := l.progress, l.onStage
	l.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}

func (l *Loader) finish(err error) {
	l.mu.Lock()
	l.err = err
	l.progress.Done = true
	if err != nil {
		l.progress.Error = err.Error()
	} else {
		l.progress = stageProgress(len(Stages) - 1)
		l.progress.Done = true
	}
	p, fn := l.progress, l.onStage
	l.mu.Unlock()

	close(l.done)
	if fn != nil {
		fn(p)
	}
}

// Progress returns the current snapshot
func (l *Loader) Progress() Progress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.progress
}

// Done is closed once Run has returned
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Err returns the terminal error, if any
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Ready reports whether loading finished without error
func (l *Loader) Ready() bool {
	select {
	case <-l.done:
		return l.Err() == nil
	default:
		return false
	}
}
