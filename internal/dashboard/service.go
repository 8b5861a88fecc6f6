package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/analysis"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/cache"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/database"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/filter"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/monitoring"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// ErrNotReady is returned while no dataset has been loaded
var ErrNotReady = errors.New("dataset is still loading")

// RecordStore is the read side of the record store
type RecordStore interface {
	Version() string
	QueryMarks(ctx context.Context, f filter.Filter) ([]types.MarkRecord, error)
	QueryScores(ctx context.Context, f filter.Filter) ([]types.ScoreRecord, error)
	QueryBias(ctx context.Context, f filter.Filter) ([]types.BiasRecord, error)
	Distinct(ctx context.Context, dim database.Dimension, f filter.Filter) ([]string, error)
}

type markResult struct {
	Shares  []types.MarkShare `json:"shares"`
	Records int               `json:"records"`
}

type scoreResult struct {
	Shares  []types.ScoreShare `json:"shares"`
	Records int                `json:"records"`
}

// Service filters the record store and runs the aggregation engine over the
// result. Every computation is remembered per dataset version and filter.
type Service struct {
	store     RecordStore
	memo      *cache.Memo
	validator *analysis.Validator
	metrics   *monitoring.Metrics
	prom      *monitoring.PrometheusMetrics
	logger    *monitoring.Logger
}

// NewService creates a dashboard service. metrics, prom and logger may be nil.
func NewService(store RecordStore, memo *cache.Memo, metrics *monitoring.Metrics, prom *monitoring.PrometheusMetrics, logger *monitoring.Logger) *Service {
	return &Service{
		store:     store,
		memo:      memo,
		validator: analysis.NewValidator(),
		metrics:   metrics,
		prom:      prom,
		logger:    logger,
	}
}

func (s *Service) version() (string, error) {
	v := s.store.Version()
	if v == "" {
		return "", ErrNotReady
	}
	return v, nil
}

// Marks returns the pooled mark distribution for f
func (s *Service) Marks(ctx context.Context, f filter.Filter) ([]types.MarkShare, error) {
	res, err := s.marks(ctx, f)
	if err != nil {
		return nil, err
	}
	return res.Shares, nil
}

func (s *Service) marks(ctx context.Context, f filter.Filter) (markResult, error) {
	version, err := s.version()
	if err != nil {
		return markResult{}, err
	}

	start := time.Now()
	res, cached, err := cache.Remember(s.memo, "marks", version, f.Key(), func() (markResult, error) {
		records, err := s.store.QueryMarks(ctx, f)
		if err != nil {
			return markResult{}, err
		}
		return markResult{Shares: analysis.AggregateMarks(records), Records: len(records)}, nil
	})
	if err != nil {
		return markResult{}, err
	}

	s.observe("marks", f, res.Records, len(res.Shares), time.Since(start), cached)
	return res, nil
}

// Scores returns the dense primary score distribution for f
func (s *Service) Scores(ctx context.Context, f filter.Filter) ([]types.ScoreShare, error) {
	version, err := s.version()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, cached, err := cache.Remember(s.memo, "scores", version, f.Key(), func() (scoreResult, error) {
		records, err := s.store.QueryScores(ctx, f)
		if err != nil {
			return scoreResult{}, err
		}
		return scoreResult{Shares: analysis.AggregateScores(records), Records: len(records)}, nil
	})
	if err != nil {
		return nil, err
	}

	s.observe("scores", f, res.Records, len(res.Shares), time.Since(start), cached)
	return res.Shares, nil
}

// Bias returns the bias records matching f unchanged
func (s *Service) Bias(ctx context.Context, f filter.Filter) ([]types.BiasRecord, error) {
	version, err := s.version()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, cached, err := cache.Remember(s.memo, "bias", version, f.Key(), func() ([]types.BiasRecord, error) {
		records, err := s.store.QueryBias(ctx, f)
		if err != nil {
			return nil, err
		}
		return analysis.PassThroughBias(records), nil
	})
	if err != nil {
		return nil, err
	}

	s.observe("bias", f, len(records), len(records), time.Since(start), cached)
	return records, nil
}

// Dashboard assembles every chart for one filter state
func (s *Service) Dashboard(ctx context.Context, state types.FilterState) (*types.Dashboard, error) {
	f := filter.FromState(state)

	marks, err := s.marks(ctx, f)
	if err != nil {
		return nil, err
	}
	scores, err := s.Scores(ctx, f)
	if err != nil {
		return nil, err
	}
	bias, err := s.Bias(ctx, f)
	if err != nil {
		return nil, err
	}

	return &types.Dashboard{
		Filters: f.State(),
		Marks:   marks.Shares,
		Scores:  scores,
		Bias:    bias,
		Records: marks.Records,
	}, nil
}

// Options lists the values every filter widget can offer. Schools are
// limited to the given municipality unless it is the All sentinel.
func (s *Service) Options(ctx context.Context, municipality string) (filter.Options, error) {
	version, err := s.version()
	if err != nil {
		return filter.Options{}, err
	}

	schoolScope := filter.FromState(types.FilterState{Municipality: municipality})
	opts, _, err := cache.Remember(s.memo, "options", version, schoolScope.Key(), func() (filter.Options, error) {
		all := filter.Filter{}
		var opts filter.Options
		var err error

		if opts.Years, err = s.store.Distinct(ctx, database.DimYear, all); err != nil {
			return opts, err
		}
		if opts.Grades, err = s.store.Distinct(ctx, database.DimGrade, all); err != nil {
			return opts, err
		}
		if opts.Subjects, err = s.store.Distinct(ctx, database.DimSubject, all); err != nil {
			return opts, err
		}
		municipalities, err := s.store.Distinct(ctx, database.DimMunicipality, all)
		if err != nil {
			return opts, err
		}
		schools, err := s.store.Distinct(ctx, database.DimSchool, schoolScope)
		if err != nil {
			return opts, err
		}
		opts.Municipalities = append([]string{filter.All}, municipalities...)
		opts.Schools = append([]string{filter.All}, schools...)
		return opts, nil
	})
	return opts, err
}

// Validation runs the optional data-quality pass over the whole dataset
func (s *Service) Validation(ctx context.Context) ([]analysis.Issue, error) {
	version, err := s.version()
	if err != nil {
		return nil, err
	}

	issues, _, err := cache.Remember(s.memo, "validation", version, "", func() ([]analysis.Issue, error) {
		all := filter.Filter{}
		marks, err := s.store.QueryMarks(ctx, all)
		if err != nil {
			return nil, err
		}
		scores, err := s.store.QueryScores(ctx, all)
		if err != nil {
			return nil, err
		}
		return s.validator.Validate(marks, scores), nil
	})
	return issues, err
}

// Invalidate drops every remembered result
func (s *Service) Invalidate() {
	s.memo.Invalidate()
}

// Stats reports memo effectiveness
func (s *Service) Stats() cache.MemoStats {
	return s.memo.Stats()
}

func (s *Service) observe(kind string, f filter.Filter, records, buckets int, d time.Duration, cached bool) {
	if s.metrics != nil {
		s.metrics.RecordAggregation(kind, records, cached)
	}
	if s.prom != nil {
		s.prom.ObserveAggregation(kind, records, cached, d)
	}
	if s.logger != nil {
		s.logger.AggregationLogger(kind, f.Key(), records, buckets, d, cached)
	}
}
