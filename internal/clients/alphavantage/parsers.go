package alphavantage

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// parseFloat64 reads a numeric field. Placeholders such as "None" and "-"
// read as zero.
func parseFloat64(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	switch s {
	case "", "None", "null", "-":
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFloat64Ptr is parseFloat64 that keeps "no value" distinct from zero.
func parseFloat64Ptr(s string) *float64 {
	switch strings.TrimSpace(s) {
	case "", "None", "null", "-", ".":
		return nil
	}
	v := parseFloat64(s)
	return &v
}

func parseInt64(s string) int64 {
	return int64(math.Trunc(parseFloat64(s)))
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

type dailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// parseDailyTimeSeries parses a TIME_SERIES_DAILY response, newest first.
func parseDailyTimeSeries(body []byte) ([]DailyPrice, error) {
	var raw struct {
		Series map[string]dailyBar `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse daily time series: %w", err)
	}
	if raw.Series == nil {
		return nil, fmt.Errorf("daily time series missing from response")
	}

	prices := make([]DailyPrice, 0, len(raw.Series))
	for day, bar := range raw.Series {
		date := parseDate(day)
		if date.IsZero() {
			continue
		}
		prices = append(prices, DailyPrice{
			Date:   date,
			Open:   parseFloat64(bar.Open),
			High:   parseFloat64(bar.High),
			Low:    parseFloat64(bar.Low),
			Close:  parseFloat64(bar.Close),
			Volume: parseInt64(bar.Volume),
		})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Date.After(prices[j].Date) })
	return prices, nil
}

// parseEconomicData parses economic indicator responses. Points without a
// value are dropped.
func parseEconomicData(body []byte) (*EconomicData, error) {
	var raw struct {
		Name     string `json:"name"`
		Interval string `json:"interval"`
		Unit     string `json:"unit"`
		Data     []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse economic data: %w", err)
	}

	data := &EconomicData{
		Name:     raw.Name,
		Interval: raw.Interval,
		Unit:     raw.Unit,
		Data:     make([]EconomicDataPoint, 0, len(raw.Data)),
	}
	for _, p := range raw.Data {
		v := parseFloat64Ptr(p.Value)
		date := parseDate(p.Date)
		if v == nil || date.IsZero() {
			continue
		}
		data.Data = append(data.Data, EconomicDataPoint{Date: date, Value: *v})
	}
	return data, nil
}
