package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/investsim/internal/clientdata"
	"github.com/aristath/investsim/internal/database"
)

const dailyBody = `{
	"Meta Data": {"1. Information": "Daily Prices", "2. Symbol": "IBM"},
	"Time Series (Daily)": {
		"2024-01-15": {"1. open": "185.00", "2. high": "186.50", "3. low": "184.50", "4. close": "186.20", "5. volume": "3456789"},
		"2024-01-14": {"1. open": "184.50", "2. high": "185.50", "3. low": "184.00", "4. close": "185.00", "5. volume": "3214567"}
	}
}`

const cpiBody = `{
	"name": "Consumer Price Index for all Urban Consumers",
	"interval": "monthly",
	"unit": "index 1982-1984=100",
	"data": [
		{"date": "2024-02-01", "value": "310.326"},
		{"date": "2024-01-01", "value": "308.417"},
		{"date": "2023-12-01", "value": "."}
	]
}`

func TestNewClient(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, 25, client.GetRemainingRequests())
}

func TestRateLimiting(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	for i := 0; i < 25; i++ {
		assert.Equal(t, 25-i, client.GetRemainingRequests())
		require.NoError(t, client.checkRateLimit())
	}

	err := client.checkRateLimit()
	assert.Error(t, err)
	assert.IsType(t, ErrRateLimitExceeded{}, err)
}

func TestResetDailyCounter(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	for i := 0; i < 10; i++ {
		_ = client.checkRateLimit()
	}
	assert.Equal(t, 15, client.GetRemainingRequests())

	client.ResetDailyCounter()
	assert.Equal(t, 25, client.GetRemainingRequests())
}

func TestCaching(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("test-key", "test data", time.Hour)
	cached, ok := client.getFromCache("test-key")
	assert.True(t, ok)
	assert.Equal(t, "test data", cached)

	_, ok = client.getFromCache("non-existent")
	assert.False(t, ok)

	client.setCache("short", "x", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok = client.getFromCache("short")
	assert.False(t, ok)

	client.ClearCache()
	_, ok = client.getFromCache("test-key")
	assert.False(t, ok)
}

func TestBuildCacheKey(t *testing.T) {
	a := buildCacheKey("TIME_SERIES_DAILY", map[string]string{"symbol": "AAPL", "outputsize": "full"})
	b := buildCacheKey("TIME_SERIES_DAILY", map[string]string{"outputsize": "full", "symbol": "AAPL", "apikey": "secret"})

	assert.Equal(t, a, b)
	assert.Contains(t, a, "TIME_SERIES_DAILY")
	assert.NotContains(t, b, "apikey=")
	assert.NotContains(t, b, "secret")
}

func TestParseFloat64(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"123.45", 123.45},
		{"0", 0},
		{"None", 0},
		{"", 0},
		{"null", 0},
		{"-", 0},
		{"50.5%", 50.5},
		{"invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseFloat64(tt.input))
		})
	}
}

func TestParseFloat64Ptr(t *testing.T) {
	assert.Nil(t, parseFloat64Ptr("None"))
	assert.Nil(t, parseFloat64Ptr("."))
	v := parseFloat64Ptr("1.5")
	require.NotNil(t, v)
	assert.Equal(t, 1.5, *v)
}

func TestParseInt64(t *testing.T) {
	assert.Equal(t, int64(12345), parseInt64("12345"))
	assert.Equal(t, int64(15000000000), parseInt64("1.5E10"))
	assert.Equal(t, int64(123), parseInt64("123.45"))
	assert.Equal(t, int64(0), parseInt64("None"))
}

func TestParseDate(t *testing.T) {
	d := parseDate("2024-01-15")
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.January, d.Month())
	assert.Equal(t, 15, d.Day())
	assert.True(t, parseDate("yesterday").IsZero())
}

func TestParseDailyTimeSeries(t *testing.T) {
	prices, err := parseDailyTimeSeries([]byte(dailyBody))
	require.NoError(t, err)
	require.Len(t, prices, 2)

	// Newest first
	assert.Equal(t, 15, prices[0].Date.Day())
	assert.Equal(t, 185.0, prices[0].Open)
	assert.Equal(t, 186.5, prices[0].High)
	assert.Equal(t, 184.5, prices[0].Low)
	assert.Equal(t, 186.2, prices[0].Close)
	assert.Equal(t, int64(3456789), prices[0].Volume)

	_, err = parseDailyTimeSeries([]byte(`{"Meta Data": {}}`))
	assert.Error(t, err)
}

func TestParseEconomicData(t *testing.T) {
	data, err := parseEconomicData([]byte(cpiBody))
	require.NoError(t, err)

	assert.Equal(t, "monthly", data.Interval)
	require.Len(t, data.Data, 2, "points without a value are dropped")
	assert.Equal(t, 310.326, data.Data[0].Value)
}

func TestErrorTypes(t *testing.T) {
	assert.Contains(t, ErrRateLimitExceeded{}.Error(), "rate limit")
	assert.Contains(t, ErrInvalidAPIKey{}.Error(), "invalid")
	assert.Contains(t, ErrSymbolNotFound{Symbol: "XYZ"}.Error(), "XYZ")
	assert.Contains(t, ErrAPI{Message: "boom"}.Error(), "boom")
}

func TestSetCacheTTL(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())
	assert.Equal(t, DefaultCacheTTL(), client.cacheTTL)

	client.SetCacheTTL(CacheTTL{PriceData: time.Minute, EconomicIndicators: time.Hour})
	assert.Equal(t, time.Minute, client.cacheTTL.PriceData)
	assert.Equal(t, time.Hour, client.cacheTTL.EconomicIndicators)
}

func TestAPIErrorDetection(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	tests := []struct {
		name      string
		body      string
		errorType error
	}{
		{"Rate limit note", `{"Note": "API call frequency is limited"}`, ErrRateLimitExceeded{}},
		{"Thank you message", `Thank you for using Alpha Vantage!`, ErrRateLimitExceeded{}},
		{"Invalid key", `{"Information": "The **demo** API key is for demo purposes only. Please claim your free API key"}`, ErrInvalidAPIKey{}},
		{"Error message", `{"Error Message": "Invalid API call."}`, ErrAPI{}},
		{"Valid response", `{"data": "valid"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.checkAPIError([]byte(tt.body))
			if tt.errorType == nil {
				assert.NoError(t, err)
				return
			}
			assert.IsType(t, tt.errorType, err)
		})
	}
}

func TestNextMidnightUTC(t *testing.T) {
	midnight := nextMidnightUTC()

	assert.True(t, midnight.After(time.Now().UTC()))
	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, 0, midnight.Minute())
	assert.Equal(t, 0, midnight.Second())
}

func TestInterfaceImplementation(t *testing.T) {
	var _ ClientInterface = (*Client)(nil)
	var _ Cache = (*clientdata.Repository)(nil)
}

func newCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "client_data.db"),
		Profile: database.ProfileCache,
		Name:    database.ClientDataName,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return clientdata.NewRepository(db.Conn())
}

func TestGetDailyTimeSeries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(dailyBody))
	}))
	defer srv.Close()

	repo := newCacheRepo(t)
	client := NewClient("test-key", zerolog.Nop())
	client.SetBaseURL(srv.URL)
	client.SetCacheStore(repo)

	prices, err := client.GetDailyTimeSeries(context.Background(), "IBM")
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, 186.2, prices[0].Close)

	// Memory cache
	_, err = client.GetDailyTimeSeries(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// A new client reads the persisted copy.
	other := NewClient("test-key", zerolog.Nop())
	other.SetBaseURL(srv.URL)
	other.SetCacheStore(repo)
	prices, err = other.GetDailyTimeSeries(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 24, client.GetRemainingRequests())
}

func TestGetDailyTimeSeries_StaleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Note": "API call frequency is limited"}`))
	}))
	defer srv.Close()

	repo := newCacheRepo(t)
	stale := []DailyPrice{{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 99}}
	require.NoError(t, repo.Store(clientdata.TableDailyPrices, "IBM", stale, -time.Hour))

	client := NewClient("test-key", zerolog.Nop())
	client.SetBaseURL(srv.URL)
	client.SetCacheStore(repo)

	prices, err := client.GetDailyTimeSeries(context.Background(), "IBM")
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, 99.0, prices[0].Close)

	_, err = client.GetDailyTimeSeries(context.Background(), "MSFT")
	var limited ErrRateLimitExceeded
	assert.True(t, errors.As(err, &limited))
}

func TestGetDailyTimeSeries_UnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call. Please retry or visit the documentation."}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", zerolog.Nop())
	client.SetBaseURL(srv.URL)

	_, err := client.GetDailyTimeSeries(context.Background(), "NOPE")
	var notFound ErrSymbolNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "NOPE", notFound.Symbol)
}

func TestGetEconomicIndicator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CPI", r.URL.Query().Get("function"))
		assert.Equal(t, "monthly", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(cpiBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", zerolog.Nop())
	client.SetBaseURL(srv.URL)

	data, err := client.GetEconomicIndicator(context.Background(), "CPI")
	require.NoError(t, err)
	require.Len(t, data.Data, 2)
	assert.Equal(t, "monthly", data.Interval)
}

func TestGetEconomicIndicator_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("test-key", zerolog.Nop())
	client.SetBaseURL(srv.URL)

	_, err := client.GetEconomicIndicator(context.Background(), "CPI")
	assert.ErrorContains(t, err, "status 502")
}
