package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFreshnessBucket(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		itemType string
		caught   time.Time
		want     string
	}{
		{"just caught", ItemTypeFish, now, FreshnessVeryFresh},
		{"exactly 24h", ItemTypeFish, now.Add(-24 * time.Hour), FreshnessVeryFresh},
		{"just over 24h", ItemTypeFish, now.Add(-24*time.Hour - time.Second), FreshnessFresh},
		{"exactly 48h", ItemTypeFish, now.Add(-48 * time.Hour), FreshnessFresh},
		{"exactly 72h", ItemTypeFish, now.Add(-72 * time.Hour), FreshnessGood},
		{"four days old", ItemTypeFish, now.Add(-96 * time.Hour), FreshnessCheck},
		{"souvenirs never bucket", ItemTypeSouvenirs, now, ""},
		{"food never buckets", ItemTypeFood, now.Add(-96 * time.Hour), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FreshnessBucket(tt.itemType, tt.caught, now))
		})
	}
}

func TestDisplayPrice(t *testing.T) {
	price := decimal.NewFromFloat(249.5)
	assert.Equal(t, "₱249.50 per kg", DisplayPrice(price, UnitKg))

	whole := decimal.NewFromInt(80)
	assert.Equal(t, "₱80.00 per pieces", DisplayPrice(whole, UnitPieces))
}
