package historical

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/investsim/internal/clients/alphavantage"
)

// CPIColumn is the column holding the consumer price index.
const CPIColumn = "CPI"

// Request selects the data for one simulation.
type Request struct {
	// Tickers and Benchmarks become price columns; benchmarks are only
	// compared against, never allocated to.
	Tickers    []string
	Benchmarks []string
	IncludeCPI bool
	// From and To bound the dates, inclusive. Zero values are open.
	From time.Time
	To   time.Time
}

// Processor downloads raw series and aligns them into a Table.
type Processor struct {
	client alphavantage.ClientInterface
	log    zerolog.Logger
}

// NewProcessor creates a processor backed by client.
func NewProcessor(client alphavantage.ClientInterface, log zerolog.Logger) *Processor {
	return &Processor{
		client: client,
		log:    log.With().Str("component", "historical_processor").Logger(),
	}
}

// RetrievePrices returns one close-price column per ticker over the dates all
// of them traded.
func (p *Processor) RetrievePrices(ctx context.Context, tickers []string) (*Table, error) {
	if len(tickers) == 0 {
		return nil, errors.New("no tickers requested")
	}
	tables := make([]*Table, 0, len(tickers))
	seen := make(map[string]bool, len(tickers))
	for _, ticker := range tickers {
		if seen[ticker] {
			continue
		}
		seen[ticker] = true

		prices, err := p.client.GetDailyTimeSeries(ctx, ticker)
		if err != nil {
			return nil, err
		}
		t, err := closeTable(ticker, prices)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return Join(tables...)
}

func closeTable(ticker string, prices []alphavantage.DailyPrice) (*Table, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("no prices for %s", ticker)
	}
	sorted := append([]alphavantage.DailyPrice(nil), prices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	dates := make([]time.Time, 0, len(sorted))
	closes := make([]float64, 0, len(sorted))
	for _, bar := range sorted {
		day := truncateDay(bar.Date)
		if n := len(dates); n > 0 && !day.After(dates[n-1]) {
			continue
		}
		dates = append(dates, day)
		closes = append(closes, bar.Close)
	}
	return FromColumns(dates, map[string][]float64{ticker: closes})
}

// RetrieveCPI returns the monthly CPI forward-filled to every calendar day up
// to the end of the last published month.
func (p *Processor) RetrieveCPI(ctx context.Context) (*Table, error) {
	data, err := p.client.GetEconomicIndicator(ctx, CPIColumn)
	if err != nil {
		return nil, err
	}
	points := append([]alphavantage.EconomicDataPoint(nil), data.Data...)
	if len(points) == 0 {
		return nil, errors.New("CPI series is empty")
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	first := truncateDay(points[0].Date)
	lastMonth := truncateDay(points[len(points)-1].Date)
	end := time.Date(lastMonth.Year(), lastMonth.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	var dates []time.Time
	var values []float64
	next := 0
	current := points[0].Value
	for day := first; !day.After(end); day = day.AddDate(0, 0, 1) {
		for next < len(points) && !truncateDay(points[next].Date).After(day) {
			current = points[next].Value
			next++
		}
		dates = append(dates, day)
		values = append(values, current)
	}
	return FromColumns(dates, map[string][]float64{CPIColumn: values})
}

// Refresh fetches everything req needs and returns the aligned table: the
// inner join of all series, restricted to [From, To], in ascending date order.
func (p *Processor) Refresh(ctx context.Context, req Request) (*Table, error) {
	symbols := append(append([]string(nil), req.Tickers...), req.Benchmarks...)
	prices, err := p.RetrievePrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve prices: %w", err)
	}

	table := prices
	if req.IncludeCPI {
		cpi, err := p.RetrieveCPI(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve CPI: %w", err)
		}
		if table, err = Join(prices, cpi); err != nil {
			return nil, err
		}
	}

	table, err = table.Filter(req.From, req.To)
	if err != nil {
		return nil, err
	}

	first, last := table.Span()
	p.log.Info().
		Strs("columns", table.Names()).
		Int("rows", table.Len()).
		Str("from", first.Format(DateLayout)).
		Str("to", last.Format(DateLayout)).
		Msg("Market table refreshed")
	return table, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
