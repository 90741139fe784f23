package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"POSTGRES_DSN", "REDIS_DB", "BOT_OWNER_IDS", "BOT_PRIVATE_GROUP_ID",
		"WATCHDOG_INTERVAL", "WATCHDOG_RESPONSE_TIMEOUT", "WATCHDOG_ENABLED",
		"POSTGRES_QUERY_TIMEOUT", "REDIS_STATE_TTL", "LOG_LEVEL", "APP_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Watchdog.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Watchdog.ResponseTimeout)
	assert.True(t, cfg.Watchdog.Enabled)
	assert.Empty(t, cfg.Bot.OwnerIDs)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL())
}

func TestLoadParsesBotAndWatchdogSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_OWNER_IDS", "1382917630, 1914567632")
	t.Setenv("WATCHDOG_INTERVAL", "15s")
	t.Setenv("WATCHDOG_RESPONSE_TIMEOUT", "45m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{1382917630, 1914567632}, cfg.Bot.OwnerIDs)
	assert.Equal(t, 15*time.Second, cfg.Watchdog.Interval)
	assert.Equal(t, 45*time.Minute, cfg.Watchdog.ResponseTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_OWNER_IDS", "12,abc")
	_, err := Load()
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("WATCHDOG_INTERVAL", "-5s")
	_, err = Load()
	require.Error(t, err)
}

func TestGroupChatID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{raw: "", want: 0},
		{raw: "-1002574381342", want: -1002574381342},
		{raw: "2574381342", want: -1002574381342},
		{raw: "-2574381342", want: -1002574381342},
	}
	for _, tt := range tests {
		got, err := BotConfig{PrivateGroupID: tt.raw}.GroupChatID()
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
