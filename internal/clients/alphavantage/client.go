// Package alphavantage fetches daily prices and economic indicators from the
// Alpha Vantage API.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/investsim/internal/clientdata"
)

const (
	defaultBaseURL = "https://www.alphavantage.co/query"
	// dailyLimit is the free tier's request budget.
	dailyLimit = 25
)

// ClientInterface is the data the simulator needs from Alpha Vantage.
type ClientInterface interface {
	GetDailyTimeSeries(ctx context.Context, symbol string) ([]DailyPrice, error)
	GetEconomicIndicator(ctx context.Context, function string) (*EconomicData, error)
}

// Cache persists raw responses between runs.
type Cache interface {
	Store(table, key string, data interface{}, ttl time.Duration) error
	GetIfFresh(table, key string, out interface{}) (bool, error)
	Get(table, key string, out interface{}) (bool, error)
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Client for the Alpha Vantage API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu           sync.Mutex
	requestCount int
	resetAt      time.Time

	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
	cacheTTL CacheTTL

	store Cache
}

// NewClient creates a client with the free tier's daily budget.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.With().Str("client", "alphavantage").Logger(),
		resetAt:  nextMidnightUTC(),
		cache:    make(map[string]cacheEntry),
		cacheTTL: DefaultCacheTTL(),
	}
}

// SetCacheStore enables the persistent response cache.
func (c *Client) SetCacheStore(store Cache) {
	c.store = store
}

// SetBaseURL points the client at another endpoint.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetCacheTTL replaces the in-memory cache lifetimes.
func (c *Client) SetCacheTTL(ttl CacheTTL) {
	c.cacheTTL = ttl
}

// GetRemainingRequests returns how many requests are left today.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()
	return dailyLimit - c.requestCount
}

// ResetDailyCounter restores the full daily budget.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.resetAt = nextMidnightUTC()
}

func (c *Client) maybeResetLocked() {
	if time.Now().UTC().After(c.resetAt) {
		c.requestCount = 0
		c.resetAt = nextMidnightUTC()
	}
}

// checkRateLimit consumes one request from the daily budget.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()
	if c.requestCount >= dailyLimit {
		return ErrRateLimitExceeded{ResetAt: c.resetAt}
	}
	c.requestCount++
	return nil
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// ClearCache empties the in-memory cache.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// buildCacheKey derives a stable key from the function and its parameters,
// leaving out the API key.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "apikey" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(function)
	for _, k := range keys {
		fmt.Fprintf(&b, ":%s=%s", k, params[k])
	}
	return b.String()
}

// checkAPIError recognizes the error payloads Alpha Vantage sends with a 200.
func (c *Client) checkAPIError(body []byte) error {
	text := string(body)
	if strings.Contains(text, "Thank you for using Alpha Vantage") {
		return ErrRateLimitExceeded{}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	if note, ok := payload["Note"].(string); ok && note != "" {
		return ErrRateLimitExceeded{}
	}
	if info, ok := payload["Information"].(string); ok {
		lower := strings.ToLower(info)
		switch {
		case strings.Contains(lower, "api key"):
			return ErrInvalidAPIKey{}
		case strings.Contains(lower, "rate limit") || strings.Contains(lower, "requests per"):
			return ErrRateLimitExceeded{}
		}
	}
	if msg, ok := payload["Error Message"].(string); ok && msg != "" {
		if strings.Contains(strings.ToLower(msg), "apikey") {
			return ErrInvalidAPIKey{}
		}
		return ErrAPI{Message: msg}
	}
	return nil
}

// doRequest performs one API call.
func (c *Client) doRequest(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", function)
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.log.Debug().Str("function", function).Interface("params", params).Msg("Requesting Alpha Vantage")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// GetDailyTimeSeries returns the full daily history of symbol, newest first.
// When the API fails, a stale persisted copy is returned if one exists.
func (c *Client) GetDailyTimeSeries(ctx context.Context, symbol string) ([]DailyPrice, error) {
	params := map[string]string{"symbol": symbol, "outputsize": "full"}
	key := buildCacheKey("TIME_SERIES_DAILY", params)
	if cached, ok := c.getFromCache(key); ok {
		return cached.([]DailyPrice), nil
	}

	var prices []DailyPrice
	if c.fresh(clientdata.TableDailyPrices, symbol, &prices) {
		c.setCache(key, prices, c.cacheTTL.PriceData)
		return prices, nil
	}

	body, err := c.doRequest(ctx, "TIME_SERIES_DAILY", params)
	if err == nil {
		prices, err = parseDailyTimeSeries(body)
	}
	if err == nil && len(prices) == 0 {
		err = ErrSymbolNotFound{Symbol: symbol}
	}
	if apiErr, ok := err.(ErrAPI); ok && strings.Contains(apiErr.Message, "Invalid API call") {
		err = ErrSymbolNotFound{Symbol: symbol}
	}
	if err != nil {
		var stale []DailyPrice
		if c.stale(clientdata.TableDailyPrices, symbol, &stale, err) {
			return stale, nil
		}
		return nil, fmt.Errorf("failed to get daily prices for %s: %w", symbol, err)
	}

	c.persist(clientdata.TableDailyPrices, symbol, prices, clientdata.TTLDailyPrices)
	c.setCache(key, prices, c.cacheTTL.PriceData)
	c.log.Info().Str("symbol", symbol).Int("bars", len(prices)).Msg("Fetched daily prices")
	return prices, nil
}

// GetEconomicIndicator returns a monthly economic series such as "CPI".
func (c *Client) GetEconomicIndicator(ctx context.Context, function string) (*EconomicData, error) {
	params := map[string]string{"interval": "monthly"}
	key := buildCacheKey(function, params)
	if cached, ok := c.getFromCache(key); ok {
		return cached.(*EconomicData), nil
	}

	data := &EconomicData{}
	if c.fresh(clientdata.TableEconomic, function, data) {
		c.setCache(key, data, c.cacheTTL.EconomicIndicators)
		return data, nil
	}

	body, err := c.doRequest(ctx, function, params)
	if err == nil {
		data, err = parseEconomicData(body)
	}
	if err != nil {
		stale := &EconomicData{}
		if c.stale(clientdata.TableEconomic, function, stale, err) {
			return stale, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", function, err)
	}

	c.persist(clientdata.TableEconomic, function, data, clientdata.TTLEconomic)
	c.setCache(key, data, c.cacheTTL.EconomicIndicators)
	c.log.Info().Str("indicator", function).Int("points", len(data.Data)).Msg("Fetched economic indicator")
	return data, nil
}

func (c *Client) fresh(table, key string, out interface{}) bool {
	if c.store == nil {
		return false
	}
	found, err := c.store.GetIfFresh(table, key, out)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to read response cache")
		return false
	}
	return found
}

func (c *Client) stale(table, key string, out interface{}, cause error) bool {
	if c.store == nil {
		return false
	}
	found, err := c.store.Get(table, key, out)
	if err != nil || !found {
		return false
	}
	c.log.Warn().Err(cause).Str("key", key).Msg("API failed, using stale cached data")
	return true
}

func (c *Client) persist(table, key string, data interface{}, ttl time.Duration) {
	if c.store == nil {
		return
	}
	if err := c.store.Store(table, key, data, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
	}
}
