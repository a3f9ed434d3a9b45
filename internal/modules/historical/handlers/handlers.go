// Package handlers provides HTTP handlers for market data.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/investsim/internal/clients/alphavantage"
	"github.com/aristath/investsim/internal/modules/historical"
	"github.com/aristath/investsim/pkg/formulas"
)

// Source loads aligned price tables.
type Source interface {
	Refresh(ctx context.Context, req historical.Request) (*historical.Table, error)
}

// Handler handles market data HTTP requests
type Handler struct {
	source Source
	log    zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(source Source, log zerolog.Logger) *Handler {
	return &Handler{
		source: source,
		log:    log.With().Str("handler", "historical").Logger(),
	}
}

// HandleGetTable handles GET /api/historical/table?tickers=A,B&benchmarks=SPY&cpi=true&from=&to=
func (h *Handler) HandleGetTable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := historical.Request{
		Tickers:    splitList(q.Get("tickers")),
		Benchmarks: splitList(q.Get("benchmarks")),
		IncludeCPI: q.Get("cpi") == "true",
	}
	if len(req.Tickers) == 0 {
		http.Error(w, "tickers is required", http.StatusBadRequest)
		return
	}
	var err error
	if req.From, req.To, err = parseRange(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	table, err := h.source.Refresh(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to load price table")
		return
	}

	dates := make([]string, table.Len())
	for i, d := range table.Dates() {
		dates[i] = d.Format(historical.DateLayout)
	}
	columns := make(map[string][]float64, len(table.Names()))
	for _, name := range table.Names() {
		columns[name], _ = table.Column(name)
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"dates":   dates,
		"columns": columns,
		"count":   table.Len(),
	}))
}

// DefaultSummaryWindow is the EMA span used when the summary request has no window.
const DefaultSummaryWindow = 20

// HandleGetSummary handles GET /api/historical/summary/{symbol}?window=20
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request, symbol string) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	window := DefaultSummaryWindow
	if s := r.URL.Query().Get("window"); s != "" {
		if window, err = strconv.Atoi(s); err != nil || window < 1 {
			http.Error(w, "window must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	table, err := h.source.Refresh(r.Context(), historical.Request{Tickers: []string{symbol}, From: from, To: to})
	if err != nil {
		h.fail(w, err, "Failed to load prices")
		return
	}
	closes, err := table.Column(symbol)
	if err != nil {
		h.fail(w, err, "Failed to load prices")
		return
	}

	if len(closes) < 2 {
		http.Error(w, "summary needs at least two observations", http.StatusUnprocessableEntity)
		return
	}

	growth := formulas.PctChangeFromStart(closes)
	daily := formulas.PctChange(closes)
	smoothed, err := formulas.EMA(growth, window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	first, last := table.Span()

	summary := map[string]interface{}{
		"symbol":         symbol,
		"from":           first.Format(historical.DateLayout),
		"to":             last.Format(historical.DateLayout),
		"days":           table.Len(),
		"total_return":   growth[len(growth)-1],
		"avg_return":     formulas.Mean(growth),
		"avg_dod_return": formulas.Mean(daily),
		"dod_volatility": formulas.PopStdDev(daily),
		"max_drawdown":   formulas.MaxDrawdown(growth),
		"loss_days":      formulas.FractionBelow(daily, 0),
		"gain_days":      formulas.FractionAbove(daily, 0),
		"window":         window,
	}
	summary[fmt.Sprintf("ema_%d", window)] = smoothed[len(smoothed)-1]
	h.writeJSON(w, http.StatusOK, envelope(summary))
}

// fail maps data source errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	var (
		notFound  alphavantage.ErrSymbolNotFound
		rateLimit alphavantage.ErrRateLimitExceeded
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, historical.ErrUnknownColumn):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &rateLimit):
		if !rateLimit.ResetAt.IsZero() {
			w.Header().Set("Retry-After", rateLimit.ResetAt.UTC().Format(http.TimeFormat))
		}
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusBadGateway)
	}
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

func parseRange(r *http.Request) (from, to time.Time, err error) {
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = time.Parse(historical.DateLayout, s); err != nil {
			return from, to, errors.New("invalid from date, expected YYYY-MM-DD")
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = time.Parse(historical.DateLayout, s); err != nil {
			return from, to, errors.New("invalid to date, expected YYYY-MM-DD")
		}
	}
	return from, to, nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
