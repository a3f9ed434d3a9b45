package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/investsim/internal/clients/alphavantage"
	"github.com/aristath/investsim/internal/expr"
	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/internal/modules/optimization"
	"github.com/aristath/investsim/internal/modules/report"
	"github.com/aristath/investsim/internal/simulator"
)

const maxScriptBytes = 1 << 20

// handleRunSimulation handles POST /api/simulations. The body is a YAML or
// JSON model script.
func (s *Server) handleRunSimulation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	script, err := simulator.ParseScript(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.simulator.Run(r.Context(), script)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Error().Err(err).Str("script", script.Name).Msg("Simulation failed")
		}
		s.writeError(w, status, err)
		return
	}

	s.writeData(w, http.StatusCreated, map[string]interface{}{
		"report":  res.Report,
		"file":    res.File,
		"took_ms": res.Took.Milliseconds(),
	})
}

// handleListKinds handles GET /api/simulations/kinds
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"objectives":  simulator.ObjectiveKinds(),
		"constraints": simulator.ConstraintKinds(),
	})
}

// handleListReports handles GET /api/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	names, err := s.reports.List()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list reports")
		s.writeError(w, http.StatusInternalServerError, errors.New("failed to list reports"))
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"reports": names,
		"count":   len(names),
	})
}

// handleGetReport handles GET /api/reports/{name}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rep, err := s.reports.Load(name)
	switch {
	case err == nil:
		s.writeData(w, http.StatusOK, rep)
	case errors.Is(err, os.ErrNotExist):
		s.writeError(w, http.StatusNotFound, fmt.Errorf("report %s not found", name))
	case errors.Is(err, report.ErrInvalidName):
		s.writeError(w, http.StatusBadRequest, err)
	default:
		s.log.Error().Err(err).Str("report", name).Msg("Failed to load report")
		s.writeError(w, http.StatusInternalServerError, errors.New("failed to load report"))
	}
}

// statusFor maps simulation errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		notFound  alphavantage.ErrSymbolNotFound
		rateLimit alphavantage.ErrRateLimitExceeded
		badKey    alphavantage.ErrInvalidAPIKey
	)
	switch {
	case errors.Is(err, simulator.ErrInvalidScript):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, historical.ErrUnknownColumn):
		return http.StatusNotFound
	case errors.Is(err, expr.ErrNotConvex),
		errors.Is(err, optimization.ErrInvalidParameter),
		errors.Is(err, optimization.ErrMissingPrerequisite):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rateLimit):
		return http.StatusTooManyRequests
	case errors.As(err, &badKey):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
