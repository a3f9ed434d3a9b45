package clientdata

import "time"

// TTL constants added to time.Now() when storing to calculate expires_at.
const (
	TTLDailyPrices = 24 * time.Hour     // Daily closes change once per trading day
	TTLEconomic    = 7 * 24 * time.Hour // CPI is published monthly
)
