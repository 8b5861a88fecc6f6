package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/database"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/filter"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// WarmCache pre-computes the dashboards users open first: the default view
// and the default view narrowed to each municipality. It returns how many
// dashboards were warmed.
func (s *Service) WarmCache(ctx context.Context) (int, error) {
	if _, err := s.version(); err != nil {
		return 0, err
	}

	municipalities, err := s.store.Distinct(ctx, database.DimMunicipality, filter.Filter{})
	if err != nil {
		return 0, err
	}

	states := make([]types.FilterState, 0, len(municipalities)+1)
	states = append(states, filter.DefaultState())
	for _, m := range municipalities {
		st := filter.DefaultState()
		st.Municipality = m
		states = append(states, st)
	}

	slog.Info("Starting dashboard cache warming", "dashboards", len(states))

	warmed := 0
	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if _, err := s.Dashboard(ctx, st); err != nil {
			slog.Error("Failed to warm dashboard cache", "error", err, "municipality", st.Municipality)
			continue
		}
		if _, err := s.Options(ctx, st.Municipality); err != nil {
			slog.Error("Failed to warm filter options", "error", err, "municipality", st.Municipality)
		}
		warmed++
	}

	slog.Info("Dashboard cache warming completed", "warmed", warmed)
	return warmed, nil
}

// AutoRefresh re-warms the cache every interval until ctx is cancelled
func (s *Service) AutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				slog.Debug("Auto-refreshing dashboard cache")
				if _, err := s.WarmCache(ctx); err != nil {
					slog.Warn("Dashboard cache refresh skipped", "error", err)
				}
			}
		}
	}()
}
