package alphavantage

import "time"

// DailyPrice is one bar of a daily time series.
type DailyPrice struct {
	Date   time.Time `json:"date" msgpack:"date"`
	Open   float64   `json:"open" msgpack:"open"`
	High   float64   `json:"high" msgpack:"high"`
	Low    float64   `json:"low" msgpack:"low"`
	Close  float64   `json:"close" msgpack:"close"`
	Volume int64     `json:"volume" msgpack:"volume"`
}

// EconomicData is an economic indicator series such as CPI.
type EconomicData struct {
	Name     string              `json:"name" msgpack:"name"`
	Interval string              `json:"interval" msgpack:"interval"`
	Unit     string              `json:"unit" msgpack:"unit"`
	Data     []EconomicDataPoint `json:"data" msgpack:"data"`
}

// EconomicDataPoint is one observation of an indicator.
type EconomicDataPoint struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Value float64   `json:"value" msgpack:"value"`
}

// CacheTTL configures how long responses stay in the in-memory cache.
type CacheTTL struct {
	PriceData          time.Duration
	EconomicIndicators time.Duration
}

// DefaultCacheTTL returns the default in-memory cache lifetimes.
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		PriceData:          15 * time.Minute,
		EconomicIndicators: 24 * time.Hour,
	}
}
