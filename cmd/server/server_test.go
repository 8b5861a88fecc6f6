package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/analysis"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/config"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/database"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/dataset"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/filter"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/monitoring"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/session"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.GinMode = gin.TestMode
	cfg.StageDelay = 0
	cfg.Generator = dataset.GeneratorConfig{
		Seed:                   7,
		Years:                  []string{"2023"},
		Grades:                 []string{"4"},
		Subjects:               map[string]int{"Русский язык": 38, "Математика": 20},
		Municipalities:         []string{"Город A", "Город B"},
		SchoolsPerMunicipality: 2,
		MinParticipants:        5,
		MaxParticipants:        50,
	}
	return cfg
}

// newTestServer builds the full router over a temporary database. When load
// is set the staged loader runs to completion before returning.
func newTestServer(t *testing.T, cfg config.Config, load bool) (*server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(cfg.DataDir)
	require.NoError(t, err)

	s := newServer(cfg, db, monitoring.NewLoggerWithWriter(io.Discard, slog.LevelError))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		s.Close()
		db.Close()
	})

	if load {
		s.load(ctx)
		require.True(t, s.loader.Ready())
	}
	return s, s.router()
}

func doRequest(r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func withQuery(path string, state types.FilterState) string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("year", state.Year)
	set("grade", state.Grade)
	set("subject", state.Subject)
	set("municipality", state.Municipality)
	set("school", state.School)
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func TestLoadingGate(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), false)

	w := doRequest(r, http.MethodGet, "/api/marks", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "unavailable", body["category"])

	w = doRequest(r, http.MethodGet, "/api/loading", "")
	require.Equal(t, http.StatusOK, w.Code)
	progress := decode[dataset.Progress](t, w)
	assert.Equal(t, 0, progress.Stage)
	assert.Equal(t, 20.0, progress.Percent)
	assert.False(t, progress.Done)

	w = doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "loading", decode[map[string]interface{}](t, w)["status"])

	// sessions do not need the dataset
	w = doRequest(r, http.MethodPost, "/api/sessions", "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, r := newTestServer(t, testConfig(t), true)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET /health returns OK status", http.MethodGet, http.StatusOK},
		{"POST /health not routed", http.MethodPost, http.StatusNotFound},
		{"DELETE /health not routed", http.MethodDelete, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, tt.method, "/health", "")
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	w := doRequest(r, http.MethodGet, "/health", "")
	body := decode[struct {
		Status         string           `json:"status"`
		DatasetVersion string           `json:"dataset_version"`
		Loading        dataset.Progress `json:"loading"`
		Records        database.Counts  `json:"records"`
	}](t, w)

	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, s.repo.Version(), body.DatasetVersion)
	assert.True(t, body.Loading.Done)
	assert.Equal(t, 100.0, body.Loading.Percent)
	assert.Equal(t, database.Counts{Marks: 8, Scores: 8, Bias: 8}, body.Records)
}

func TestMarksEndpoint(t *testing.T) {
	cfg := testConfig(t)
	_, r := newTestServer(t, cfg, true)
	ds := dataset.Generate(cfg.Generator)

	tests := []struct {
		name  string
		state types.FilterState
	}{
		{"no parameters", types.FilterState{}},
		{"explicit sentinel", types.FilterState{Year: filter.All, Municipality: filter.All}},
		{"latin all", types.FilterState{Subject: "all"}},
		{"one municipality", types.FilterState{Municipality: "Город A"}},
		{"one school", types.FilterState{Subject: "Математика", Municipality: "Город B", School: "МБОУ СОШ №3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodGet, withQuery("/api/marks", tt.state), "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			got := decode[[]types.MarkShare](t, w)
			want := analysis.AggregateMarks(filter.ApplyMarks(ds.Marks, filter.FromState(tt.state)))
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Name, got[i].Name)
				assert.Equal(t, want[i].Color, got[i].Color)
				assert.InDelta(t, want[i].Value, got[i].Value, 0.011)
			}
		})
	}

	// no matching rows yields an empty array rather than null
	w := doRequest(r, http.MethodGet, "/api/marks?year=1999", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestScoresEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := doRequest(r, http.MethodGet, withQuery("/api/scores", types.FilterState{Subject: "Математика"}), "")
	require.Equal(t, http.StatusOK, w.Code)

	shares := decode[[]types.ScoreShare](t, w)
	require.NotEmpty(t, shares)
	assert.LessOrEqual(t, len(shares), 21)

	sum := 0.0
	for i, s := range shares {
		assert.Equal(t, i, s.Score)
		sum += s.Percentage
	}
	assert.InDelta(t, 100, sum, 0.5)
}

func TestBiasEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := doRequest(r, http.MethodGet, "/api/bias", "")
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]types.BiasRecord](t, w)
	assert.Len(t, all, 8)

	w = doRequest(r, http.MethodGet, withQuery("/api/bias", types.FilterState{Municipality: "Город A"}), "")
	require.Equal(t, http.StatusOK, w.Code)
	some := decode[[]types.BiasRecord](t, w)
	require.Len(t, some, 4)
	for _, b := range some {
		assert.Equal(t, "Город A", b.Municipality)
		assert.Len(t, b.Indicators, len(dataset.BiasIndicators))
	}
}

func TestDashboardEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := doRequest(r, http.MethodGet, withQuery("/api/dashboard", filter.DefaultState()), "")
	require.Equal(t, http.StatusOK, w.Code)

	d := decode[types.Dashboard](t, w)
	assert.Equal(t, filter.DefaultState(), d.Filters)
	assert.Equal(t, 4, d.Records)
	assert.Len(t, d.Marks, 4)
	assert.NotEmpty(t, d.Scores)
	assert.Len(t, d.Bias, 4)
}

func TestOptionsEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := doRequest(r, http.MethodGet, "/api/filters/options", "")
	require.Equal(t, http.StatusOK, w.Code)
	opts := decode[filter.Options](t, w)
	assert.Equal(t, []string{"2023"}, opts.Years)
	assert.Equal(t, []string{"Математика", "Русский язык"}, opts.Subjects)
	assert.Equal(t, []string{filter.All, "Город A", "Город B"}, opts.Municipalities)
	assert.Len(t, opts.Schools, 5)

	w = doRequest(r, http.MethodGet, "/api/filters/options?municipality="+url.QueryEscape("Город A"), "")
	require.Equal(t, http.StatusOK, w.Code)
	opts = decode[filter.Options](t, w)
	assert.Equal(t, []string{filter.All, "МБОУ СОШ №1", "МБОУ СОШ №2"}, opts.Schools)
}

func TestValidationEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := doRequest(r, http.MethodGet, "/api/validation", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Issues []analysis.Issue `json:"issues"`
		Count  int              `json:"count"`
	}](t, w)
	assert.Equal(t, 0, body.Count)
	assert.Empty(t, body.Issues)
}

func TestInvalidFilterValues(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	tests := []struct {
		name string
		path string
	}{
		{"script in year", "/api/marks?year=" + url.QueryEscape("<script>alert(1)</script>")},
		{"sql in school", "/api/scores?school=" + url.QueryEscape("1; DROP TABLE mark_records")},
		{"overlong subject", "/api/dashboard?subject=" + strings.Repeat("x", 300)},
		{"script in options", "/api/filters/options?municipality=" + url.QueryEscape("javascript:x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation", decode[map[string]interface{}](t, w)["category"])
		})
	}
}

func TestSessionFlow(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := doRequest(r, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decode[session.Session](t, w)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, filter.DefaultState(), sess.Filters)

	base := "/api/sessions/" + sess.ID

	// changing municipality resets the school, even when the patch names one
	w = doRequest(r, http.MethodPatch, base+"/filters", `{"municipality":"Город A","school":"МБОУ СОШ №1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess = decode[session.Session](t, w)
	assert.Equal(t, "Город A", sess.Filters.Municipality)
	assert.Equal(t, filter.All, sess.Filters.School)

	w = doRequest(r, http.MethodPatch, base+"/filters", `{"school":"МБОУ СОШ №1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	sess = decode[session.Session](t, w)
	assert.Equal(t, "МБОУ СОШ №1", sess.Filters.School)

	w = doRequest(r, http.MethodGet, base+"/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[types.Dashboard](t, w)
	assert.Equal(t, sess.Filters, d.Filters)
	assert.Equal(t, 1, d.Records)

	w = doRequest(r, http.MethodPatch, base+"/filters", `{"year":"<script>x</script>"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPatch, base+"/filters", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(r, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[map[string]interface{}](t, w)["category"])

	w = doRequest(r, http.MethodGet, base+"/dashboard", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResponseCache(t *testing.T) {
	s, r := newTestServer(t, testConfig(t), true)

	path := withQuery("/api/scores", types.FilterState{Municipality: "Город B"})

	first := doRequest(r, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := doRequest(r, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	assert.Equal(t, int64(1), s.metrics.CacheHits)
}

func TestMetricsEndpoints(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	doRequest(r, http.MethodGet, "/api/marks", "")

	w := doRequest(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	for _, key := range []string{"requests", "aggregations", "response_cache", "rate_limit", "database", "sessions"} {
		assert.Contains(t, body, key)
	}

	w = doRequest(r, http.MethodGet, "/metrics/prometheus", "")
	require.Equal(t, http.StatusOK, w.Code)
	text := w.Body.String()
	assert.Contains(t, text, "vpr_aggregations_total")
	assert.Contains(t, text, "vpr_http_requests_total")
	assert.Contains(t, text, `vpr_dataset_rows{collection="marks"} 8`)
}

func TestMaterialize_ReuseAndRegenerate(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t), true)
	ctx := context.Background()

	first := s.repo.Version()
	require.NotEmpty(t, first)

	require.NoError(t, s.materialize(ctx))
	assert.Equal(t, first, s.repo.Version())

	s.cfg.Regenerate = true
	require.NoError(t, s.materialize(ctx))
	assert.NotEqual(t, first, s.repo.Version())
}

func TestCORSPreflight(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_ConcurrentRequests(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	paths := []string{
		"/api/dashboard",
		withQuery("/api/dashboard", types.FilterState{Municipality: "Город A"}),
		withQuery("/api/marks", types.FilterState{Subject: "Математика"}),
		"/api/scores",
	}

	var wg sync.WaitGroup
	codes := make(chan int, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := doRequest(r, http.MethodGet, paths[id%len(paths)], "")
			codes <- w.Code
		}(i)
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}

func TestCompressedResponse(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/bias", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var records []types.BiasRecord
	require.NoError(t, json.NewDecoder(zr).Decode(&records))
	assert.Len(t, records, 8)
}

func TestSwaggerDocs(t *testing.T) {
	_, r := newTestServer(t, testConfig(t), false)

	w := doRequest(r, http.MethodGet, "/swagger/index.html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "script-src 'self' 'unsafe-inline'")

	w = doRequest(r, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)

	doc := decode[struct {
		Swagger string                     `json:"swagger"`
		Info    map[string]interface{}     `json:"info"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}](t, w)
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Equal(t, "VPR Analytics API", doc.Info["title"])
	for _, path := range []string{
		"/health",
		"/api/loading",
		"/api/filters/options",
		"/api/marks",
		"/api/scores",
		"/api/bias",
		"/api/dashboard",
		"/api/validation",
		"/api/sessions",
		"/api/sessions/{id}",
		"/api/sessions/{id}/filters",
		"/api/sessions/{id}/dashboard",
	} {
		assert.Contains(t, doc.Paths, path)
	}
}
