package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}

// BudgetControlEnabled gates commitment, encumbrance and actual consumption.
//
// Set via env:
// - BUDGET_CONTROL_ENABLED=false
func BudgetControlEnabled() bool {
	return boolFromEnv("BUDGET_CONTROL_ENABLED", true)
}

// OutboxDirectProcessing processes outbox rows in-process instead of
// publishing them to Pub/Sub. It is forced on when no topic is configured.
func OutboxDirectProcessing() bool {
	if strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")) == "" {
		return true
	}
	return boolFromEnv("OUTBOX_DIRECT_PROCESSING", false)
}

// AutoMatchConfirmThreshold is the score at which an automatic match is
// created as MATCHED instead of SUGGESTED. Unset means auto matches always stay
// suggestions.
func AutoMatchConfirmThreshold() (decimal.Decimal, bool) {
	v := strings.TrimSpace(os.Getenv("AUTO_MATCH_CONFIRM_THRESHOLD"))
	if v == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// AutoMatchDateWindowDays is how far apart a statement line and a payment may
// be dated and still earn the date score.
func AutoMatchDateWindowDays() int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("AUTO_MATCH_DATE_WINDOW_DAYS")))
	if err != nil || n < 0 {
		return 3
	}
	return n
}
