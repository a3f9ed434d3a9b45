package alphavantage

import (
	"fmt"
	"time"
)

// ErrRateLimitExceeded is returned when the daily request budget is used up
// or the API reports throttling.
type ErrRateLimitExceeded struct {
	ResetAt time.Time
}

func (e ErrRateLimitExceeded) Error() string {
	if e.ResetAt.IsZero() {
		return "alpha vantage rate limit exceeded"
	}
	return fmt.Sprintf("alpha vantage rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// ErrInvalidAPIKey is returned when the API rejects the key.
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "alpha vantage api key is invalid or missing"
}

// ErrSymbolNotFound is returned when the API does not know a symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("symbol not found: %s", e.Symbol)
}

// ErrAPI carries any other error message returned in a response body.
type ErrAPI struct {
	Message string
}

func (e ErrAPI) Error() string {
	return "alpha vantage error: " + e.Message
}
