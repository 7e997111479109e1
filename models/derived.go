package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Freshness buckets for fish listings, derived from elapsed time since
// catch. Non-fish items have no bucket.
const (
	FreshnessVeryFresh = "Very Fresh"
	FreshnessFresh     = "Fresh"
	FreshnessGood      = "Good"
	FreshnessCheck     = "Check Freshness"
)

func FreshnessBucket(itemType string, catchDate, now time.Time) string {
	if itemType != ItemTypeFish {
		return ""
	}

	elapsed := now.Sub(catchDate)
	switch {
	case elapsed <= 24*time.Hour:
		return FreshnessVeryFresh
	case elapsed <= 48*time.Hour:
		return FreshnessFresh
	case elapsed <= 72*time.Hour:
		return FreshnessGood
	default:
		return FreshnessCheck
	}
}

func DisplayPrice(price decimal.Decimal, unit string) string {
	return fmt.Sprintf("₱%s per %s", price.StringFixed(2), unit)
}
