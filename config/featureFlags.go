package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings gathers the engine knobs read from the environment.
type Settings struct {
	TxRetries             int
	LedgerCacheEnabled    bool
	LedgerCacheTTL        time.Duration
	ReportSlowThreshold   time.Duration
	ReportArchiveBucket   string
	EventsSubscription    string
	DefaultCurrencySymbol string
}

func LoadSettings() Settings {
	return Settings{
		TxRetries:             intFromEnv("LEDGER_TX_RETRIES", 3),
		LedgerCacheEnabled:    boolFromEnv("ENABLE_LEDGER_CACHE", false),
		LedgerCacheTTL:        time.Duration(intFromEnv("LEDGER_CACHE_TTL_SECONDS", 300)) * time.Second,
		ReportSlowThreshold:   time.Duration(intFromEnv("REPORT_SLOW_MS", 500)) * time.Millisecond,
		ReportArchiveBucket:   strings.TrimSpace(os.Getenv("REPORT_ARCHIVE_BUCKET")),
		EventsSubscription:    stringFromEnv("LEDGER_EVENTS_SUBSCRIPTION", "ledger-events"),
		DefaultCurrencySymbol: stringFromEnv("DEFAULT_CURRENCY_SYMBOL", "$"),
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
