package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/investsim/internal/clients/alphavantage"
	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/internal/modules/report"
	"github.com/aristath/investsim/internal/simulator"
)

type fakeRunner struct {
	script *simulator.Script
	err    error
}

func (f *fakeRunner) Run(_ context.Context, script *simulator.Script) (*simulator.Result, error) {
	f.script = script
	if f.err != nil {
		return nil, f.err
	}
	v := 0.21
	return &simulator.Result{
		Report: &report.Report{Status: "optimal", Value: &v, Allocation: map[string]float64{"A": 1}},
		File:   "2024-01-01-000000-abcd.json",
		Took:   5 * time.Millisecond,
	}, nil
}

type fakeJobs struct {
	mu  sync.Mutex
	ran []string
}

func (f *fakeJobs) JobNames() []string { return []string{"report_archive"} }

func (f *fakeJobs) RunNow(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, name)
	return nil
}

func (f *fakeJobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ran)
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func do(t *testing.T, s *Server, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func newTestServer(cfg Config) *Server {
	cfg.Log = zerolog.Nop()
	cfg.DevMode = true
	return New(cfg)
}

func TestHealth(t *testing.T) {
	s := newTestServer(Config{})
	w := do(t, s, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "investsim", response["service"])
}

func TestRunSimulation(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(Config{Simulator: runner})

	w := do(t, s, "POST", "/api/simulations", "tickers: [A, B]\nobjective: {kind: maximize_return}\n")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []string{"A", "B"}, runner.script.Tickers)

	var response struct {
		Data struct {
			Report report.Report `json:"report"`
			File   string        `json:"file"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "optimal", response.Data.Report.Status)
	assert.InDelta(t, 0.21, *response.Data.Report.Value, 1e-12)
	assert.Equal(t, "2024-01-01-000000-abcd.json", response.Data.File)
}

func TestRunSimulation_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"invalid script", "tickers: []", nil, http.StatusBadRequest},
		{"unknown symbol", "", alphavantage.ErrSymbolNotFound{Symbol: "ZZZ"}, http.StatusNotFound},
		{"unknown benchmark", "", historical.ErrUnknownColumn, http.StatusNotFound},
		{"not convex", "", expr.ErrNotConvex, http.StatusUnprocessableEntity},
		{"rate limited", "", alphavantage.ErrRateLimitExceeded{}, http.StatusTooManyRequests},
		{"internal", "", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == "" {
				body = `{"tickers": ["A"], "objective": {"kind": "maximize_return"}}`
			}
			s := newTestServer(Config{Simulator: &fakeRunner{err: tt.err}})
			w := do(t, s, "POST", "/api/simulations", body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestListKinds(t *testing.T) {
	s := newTestServer(Config{})
	w := do(t, s, "GET", "/api/simulations/kinds", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data map[string][]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response.Data["objectives"], "minimize_classical_volatility")
	assert.Contains(t, response.Data["constraints"], "keep_long_positions_only")
}

func TestReports(t *testing.T) {
	store := report.NewStore(t.TempDir(), nil, zerolog.Nop())
	name, err := store.Save(context.Background(), &report.Report{ID: "0123456789", Status: "optimal"})
	require.NoError(t, err)

	s := newTestServer(Config{Reports: store})

	w := do(t, s, "GET", "/api/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), name)

	w = do(t, s, "GET", "/api/reports/"+name, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"0123456789"`)

	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/reports/missing.json", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/api/reports/..", "").Code)
}

func TestRoutesDisabledWithoutDependencies(t *testing.T) {
	s := newTestServer(Config{})
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, do(t, s, "POST", "/api/simulations", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/reports", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/system/jobs", "").Code)
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(Config{DataDir: t.TempDir(), CacheDB: fakeHealth{err: errors.New("locked")}})
	w := do(t, s, "GET", "/api/system/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response.Status)
	assert.Equal(t, "unhealthy", response.CacheDB)
	assert.Nil(t, response.RemainingRequests)
}

func TestTriggerJob(t *testing.T) {
	jobs := &fakeJobs{}
	s := newTestServer(Config{Jobs: jobs})

	w := do(t, s, "GET", "/api/system/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "report_archive")

	assert.Equal(t, http.StatusNotFound, do(t, s, "POST", "/api/system/jobs/unknown", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, s, "POST", "/api/system/jobs/report_archive", "").Code)
	assert.Eventually(t, func() bool { return jobs.count() == 1 }, time.Second, 10*time.Millisecond)
}
