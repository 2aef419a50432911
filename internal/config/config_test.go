package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "ledger"},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsAllMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "DB_USER", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_ProductionRequiresSSLModeAndRedis(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
	if !strings.Contains(err.Error(), "DB_SSLMODE") || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Bulk.Workers != 4 || c.Bulk.LogDir == "" || c.Bulk.MaxConcurrent != 2 {
		t.Fatalf("unexpected bulk defaults: %+v", c.Bulk)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute || c.Redis.CacheTTL != 5*time.Minute {
		t.Fatalf("unexpected ttl defaults")
	}
	if c.RedisEnabled() {
		t.Fatalf("redis should be disabled without host")
	}
	if c.Kafka.Topic != "ledger-config.changes" {
		t.Fatalf("unexpected topic default %q", c.Kafka.Topic)
	}
}

func TestValidate_RejectsBadWorkerCount(t *testing.T) {
	c := validLocal()
	c.Bulk.Workers = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative workers")
	}
}

func TestLoad_ParsesEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "n")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("BULK_WORKERS", "8")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9090" || c.Bulk.Workers != 8 || c.DB.AutoMigrate {
		t.Fatalf("unexpected config: %+v", c)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", c.Kafka.Brokers)
	}
}

func TestLoad_RejectsMalformedNumbers(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "nope")
	t.Setenv("DB_PORT", "5432")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APP_PORT") {
		t.Fatalf("expected APP_PORT error, got %v", err)
	}
}

func TestLoadEnvFiles_DoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("LEDGER_TEST_A=file\nLEDGER_TEST_B=file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("LEDGER_TEST_A", "env")
	t.Setenv("LEDGER_TEST_B", "")
	os.Unsetenv("LEDGER_TEST_B")

	if err := LoadEnvFiles(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load env files: %v", err)
	}
	if os.Getenv("LEDGER_TEST_A") != "env" || os.Getenv("LEDGER_TEST_B") != "file" {
		t.Fatalf("unexpected env: A=%q B=%q", os.Getenv("LEDGER_TEST_A"), os.Getenv("LEDGER_TEST_B"))
	}
}
