package models

import "time"

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// APIUsage shows the current daily budget window for one API.
type APIUsage struct {
	APIName      string  `json:"api_name"`
	Count        int64   `json:"count"`
	Limit        int64   `json:"limit"`
	UsagePercent float64 `json:"usage_percent"`
	ResetIn      int64   `json:"reset_in_seconds"`
}

// CallRecord is one journaled budget-gate decision.
type CallRecord struct {
	ID        string    `json:"id"`
	APIName   string    `json:"api_name"`
	Allowed   bool      `json:"allowed"`
	CreatedAt time.Time `json:"created_at"`
}

// CallStat aggregates journaled gate decisions by API and day.
type CallStat struct {
	APIName string `json:"api_name"`
	Day     string `json:"day"`
	Allowed int64  `json:"allowed"`
	Denied  int64  `json:"denied"`
}
