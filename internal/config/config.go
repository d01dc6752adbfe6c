// Package config reads the simulator's settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jason-s-yu/roomsim/internal/models"
	"github.com/sirupsen/logrus"
)

// Catalog sources.
const (
	SourceFile     = "file"
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
)

// Postgres holds connection parts, named as the server's env vars name them.
type Postgres struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

// Config is everything cmd/roomsim needs to run.
type Config struct {
	LogLevel logrus.Level

	CatalogSource string
	CatalogPath   string
	RedisAddr     string
	RedisDB       int
	RedisPrefix   string
	Postgres      Postgres

	LocalUser          models.User
	RoomID             int64
	RoomPassword       string
	NotificationBuffer int
}

// Load reads the configuration from environment variables:
//   - LOG_LEVEL (default "info")
//   - CATALOG_SOURCE: file, redis or postgres (default "file")
//   - CATALOG_PATH (default "rooms.yaml")
//   - REDIS_ADDR (default "localhost:6379"), REDIS_DB (default 0), CATALOG_REDIS_PREFIX (default "roomsim")
//   - POSTGRES_USER, POSTGRES_PASSWORD, PG_HOST, PG_PORT (default "5432"), PG_DATABASE
//   - LOCAL_USER_ID (default 1), LOCAL_USERNAME (default "local")
//   - ROOM_ID (default 1), ROOM_PASSWORD
//   - NOTIFICATION_BUFFER (default 256)
func Load() (Config, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := Config{
		LogLevel:      level,
		CatalogSource: getEnv("CATALOG_SOURCE", SourceFile),
		CatalogPath:   getEnv("CATALOG_PATH", "rooms.yaml"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("CATALOG_REDIS_PREFIX", "roomsim"),
		Postgres: Postgres{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Database: os.Getenv("PG_DATABASE"),
		},
		LocalUser: models.User{
			ID:       getEnvInt("LOCAL_USER_ID", 1),
			Username: getEnv("LOCAL_USERNAME", "local"),
		},
		RoomID:             int64(getEnvInt("ROOM_ID", 1)),
		RoomPassword:       os.Getenv("ROOM_PASSWORD"),
		NotificationBuffer: getEnvInt("NOTIFICATION_BUFFER", 256),
	}

	switch cfg.CatalogSource {
	case SourceFile, SourceRedis, SourcePostgres:
	default:
		return Config{}, fmt.Errorf("unknown CATALOG_SOURCE %q", cfg.CatalogSource)
	}
	return cfg, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
