package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "CATALOG_SOURCE", "CATALOG_PATH", "REDIS_ADDR", "REDIS_DB",
		"CATALOG_REDIS_PREFIX", "POSTGRES_USER", "POSTGRES_PASSWORD", "PG_HOST",
		"PG_PORT", "PG_DATABASE", "LOCAL_USER_ID", "LOCAL_USERNAME", "ROOM_ID",
		"ROOM_PASSWORD", "NOTIFICATION_BUFFER",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, SourceFile, cfg.CatalogSource)
	assert.Equal(t, "rooms.yaml", cfg.CatalogPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "5432", cfg.Postgres.Port)
	assert.Equal(t, 1, cfg.LocalUser.ID)
	assert.Equal(t, int64(1), cfg.RoomID)
	assert.Equal(t, 256, cfg.NotificationBuffer)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CATALOG_SOURCE", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOCAL_USER_ID", "77")
	t.Setenv("LOCAL_USERNAME", "peppy")
	t.Setenv("ROOM_ID", "12")
	t.Setenv("ROOM_PASSWORD", "pw")
	t.Setenv("NOTIFICATION_BUFFER", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, SourceRedis, cfg.CatalogSource)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 77, cfg.LocalUser.ID)
	assert.Equal(t, "peppy", cfg.LocalUser.Username)
	assert.Equal(t, int64(12), cfg.RoomID)
	assert.Equal(t, "pw", cfg.RoomPassword)
	assert.Equal(t, 256, cfg.NotificationBuffer, "unparsable ints fall back to the default")
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "chatty")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("CATALOG_SOURCE", "etcd")
	_, err = Load()
	assert.Error(t, err)
}
