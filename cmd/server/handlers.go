package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/dashboard"
	apperrors "github.com/ZanzyTHEbar/vpr-analytics/internal/errors"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/filter"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/session"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

const apiVersion = "1.0.0"

// fail hands err to the error middleware, mapping domain errors onto API categories
func (s *server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dashboard.ErrNotReady):
		err = s.loadingError()
	case errors.Is(err, session.ErrNotFound):
		err = apperrors.NewNotFoundError("session", c.Param("id"))
	}
	_ = c.Error(err)
}

func (s *server) loadingError() *apperrors.AppError {
	p := s.loader.Progress()
	details := map[string]string{
		"stage":   strconv.Itoa(p.Stage),
		"message": p.Message,
		"percent": strconv.FormatFloat(p.Percent, 'f', -1, 64),
	}
	if p.Done && p.Error != "" {
		details["error"] = p.Error
		return apperrors.NewUnavailableError("Dataset failed to load", details)
	}
	return apperrors.NewUnavailableError("Dataset is still loading", details)
}

// requireReady answers 503 until the staged loader has finished
func (s *server) requireReady(c *gin.Context) {
	if s.loader.Ready() {
		c.Next()
		return
	}
	_ = c.Error(s.loadingError())
	c.Abort()
}

// bindFilter reads the five filter query parameters. Omitted parameters and
// the All sentinel both mean "unrestricted".
func (s *server) bindFilter(c *gin.Context) (types.FilterState, error) {
	var state types.FilterState
	if err := c.ShouldBindQuery(&state); err != nil {
		return state, apperrors.NewValidationError("Invalid filter parameters", err.Error())
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"year", &state.Year},
		{"grade", &state.Grade},
		{"subject", &state.Subject},
		{"municipality", &state.Municipality},
		{"school", &state.School},
	}

	invalid := make(map[string]string)
	for _, f := range fields {
		v, err := s.security.CleanValue(*f.value)
		if err != nil {
			invalid[f.name] = err.Error()
			continue
		}
		*f.value = v
	}
	if len(invalid) > 0 {
		return state, apperrors.NewValidationErrorWithMap(invalid)
	}
	return state, nil
}

// cleanPatch sanitizes every value present in a partial filter update
func (s *server) cleanPatch(patch *types.FilterPatch) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"year", patch.Year},
		{"grade", patch.Grade},
		{"subject", patch.Subject},
		{"municipality", patch.Municipality},
		{"school", patch.School},
	}

	invalid := make(map[string]string)
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		v, err := s.security.CleanValue(*f.value)
		if err != nil {
			invalid[f.name] = err.Error()
			continue
		}
		*f.value = v
	}
	if len(invalid) > 0 {
		return apperrors.NewValidationErrorWithMap(invalid)
	}
	return nil
}

func (s *server) handleHealth(c *gin.Context) {
	progress := s.loader.Progress()

	status := "ok"
	code := http.StatusOK
	switch {
	case !progress.Done:
		status = "loading"
	case progress.Error != "":
		status = "failed"
		code = http.StatusServiceUnavailable
	}

	response := gin.H{
		"status":          status,
		"timestamp":       time.Now().Format(time.RFC3339),
		"version":         apiVersion,
		"dataset_version": s.repo.Version(),
		"loading":         progress,
	}

	if s.loader.Ready() {
		counts, err := s.repo.Counts(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		response["records"] = counts
	}

	c.JSON(code, response)
}

func (s *server) handleLoading(c *gin.Context) {
	c.JSON(http.StatusOK, s.loader.Progress())
}

func (s *server) handleOptions(c *gin.Context) {
	municipality, err := s.security.CleanValue(c.Query("municipality"))
	if err != nil {
		s.fail(c, apperrors.NewValidationError("Invalid municipality", err.Error()))
		return
	}

	opts, err := s.dashboard.Options(c.Request.Context(), municipality)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (s *server) handleMarks(c *gin.Context) {
	state, err := s.bindFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	shares, err := s.dashboard.Marks(c.Request.Context(), filter.FromState(state))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

func (s *server) handleScores(c *gin.Context) {
	state, err := s.bindFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	shares, err := s.dashboard.Scores(c.Request.Context(), filter.FromState(state))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

func (s *server) handleBias(c *gin.Context) {
	state, err := s.bindFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	records, err := s.dashboard.Bias(c.Request.Context(), filter.FromState(state))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *server) handleDashboard(c *gin.Context) {
	state, err := s.bindFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	d, err := s.dashboard.Dashboard(c.Request.Context(), state)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *server) handleValidation(c *gin.Context) {
	issues, err := s.dashboard.Validation(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"issues": issues,
		"count":  len(issues),
	})
}

func (s *server) handleCreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, s.sessions.Create())
}

func (s *server) handleGetSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *server) handleUpdateSession(c *gin.Context) {
	var patch types.FilterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, apperrors.NewValidationError("Invalid filter update", err.Error()))
		return
	}
	if err := s.cleanPatch(&patch); err != nil {
		s.fail(c, err)
		return
	}

	sess, err := s.sessions.Update(c.Param("id"), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *server) handleDeleteSession(c *gin.Context) {
	s.sessions.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *server) handleSessionDashboard(c *gin.Context) {
	sel, err := s.sessions.Selector(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	d, err := s.dashboard.Dashboard(c.Request.Context(), sel.State())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"requests":       s.metrics.GetStats(),
		"aggregations":   s.dashboard.Stats(),
		"response_cache": s.respCache.Stats(),
		"compression":    s.compress.GetStats(),
		"rate_limit":     s.limiter.GetStats(),
		"database":       s.db.GetPoolStats(),
		"sessions":       s.sessions.Len(),
		"dataset":        s.repo.Version(),
		"loading":        s.loader.Progress(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
