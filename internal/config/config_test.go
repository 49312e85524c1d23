package config

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.MinSampleDistanceM != 5 {
		t.Fatalf("expected default sample distance, got %v", cfg.MinSampleDistanceM)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REWARDS_FILE", "/etc/carbonsaver/rewards.yaml")
	t.Setenv("MIN_SAMPLE_DISTANCE_M", "12.5")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.RewardsFile != "/etc/carbonsaver/rewards.yaml" {
		t.Fatalf("expected override rewards file")
	}
	if cfg.MinSampleDistanceM != 12.5 {
		t.Fatalf("expected override sample distance")
	}
}

func TestInitLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := InitLogger("debug", &buf)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level")
	}
	logger.Debug().Msg("hello")
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Fatalf("expected message written")
	}

	InitLogger("nonsense", &buf)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback")
	}
}
