package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_SessionDefaults(t *testing.T) {
	for _, k := range []string{"SWEEP_INTERVAL_SECONDS", "COMPLETION_REWARD_STARS", "REFUND_THRESHOLD_PERCENT", "WARNING_THRESHOLD", "STORAGE_DRIVER"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, DefaultSessionConfig(), cfg.Session)
	assert.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
}

func TestLoad_SessionOverrides(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "15")
	t.Setenv("REFUND_THRESHOLD_PERCENT", "90.5")
	t.Setenv("WARNING_THRESHOLD", "5")
	t.Setenv("FINALIZE_BASE_DELAY_MS", "250")
	t.Setenv("STORAGE_DRIVER", "MEMORY")

	cfg := Load()

	assert.Equal(t, 15*time.Second, cfg.Session.SweepInterval)
	assert.Equal(t, 90.5, cfg.Session.RefundThresholdPercent)
	assert.Equal(t, 5, cfg.Session.WarningThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.FinalizeBaseDelay)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
}

func TestLoad_InvalidNumberFallsBack(t *testing.T) {
	t.Setenv("DAILY_TEST_QUOTA", "many")

	assert.Equal(t, 5, Load().Session.DailyTestQuota)
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"https://a.uz", "https://b.uz"}, parseOrigins(" https://a.uz, ,https://b.uz "))
}

func TestCacheKeys(t *testing.T) {
	day := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "student:42:sessions:2026-03-09", CacheKey.StudentDailySessionsKey(42, day))
	assert.Equal(t, "test:7:monitor", CacheKey.TestMonitorChannel(7))
}
