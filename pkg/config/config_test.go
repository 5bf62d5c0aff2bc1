package config

import (
	"os"
	"path/filepath"
	"testing"
)

var configKeys = []string{
	"TEAMBOARD_ENV_FILE", "PORT", "ENVIRONMENT", "DATABASE_PATH", "JWT_SECRET",
	"TOKEN_TTL_HOURS", "CORS_ORIGINS", "MAX_UPLOAD_SIZE", "FILE_STORAGE_PATH",
	"VAPID_PUBLIC_KEY", "VAPID_PRIVATE_KEY",
}

func clearConfigEnv() {
	for _, key := range configKeys {
		_ = os.Unsetenv(key)
	}
}

func writeEnvFile(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	return path
}

func TestLoadReadsExplicitEnvFile(t *testing.T) {
	clearConfigEnv()
	t.Cleanup(clearConfigEnv)

	envPath := writeEnvFile(t, t.TempDir(), `
PORT=9090
ENVIRONMENT=production
DATABASE_PATH=/var/lib/teamboard/teamboard.db
JWT_SECRET=super-secret
TOKEN_TTL_HOURS=12
CORS_ORIGINS=https://example.com
MAX_UPLOAD_SIZE=2048
FILE_STORAGE_PATH=/var/lib/teamboard/uploads
VAPID_PUBLIC_KEY=pub
VAPID_PRIVATE_KEY=priv
`)
	t.Setenv("TEAMBOARD_ENV_FILE", envPath)

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.Environment != "production" {
		t.Fatalf("Environment = %q, want %q", cfg.Environment, "production")
	}
	if cfg.DatabasePath != "/var/lib/teamboard/teamboard.db" {
		t.Fatalf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.JWTSecret != "super-secret" {
		t.Fatalf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.TokenTTLHours != 12 {
		t.Fatalf("TokenTTLHours = %d, want 12", cfg.TokenTTLHours)
	}
	if cfg.CORSOrigins != "https://example.com" {
		t.Fatalf("CORSOrigins = %q", cfg.CORSOrigins)
	}
	if cfg.MaxUploadSize != 2048 {
		t.Fatalf("MaxUploadSize = %d, want 2048", cfg.MaxUploadSize)
	}
	if cfg.FileStoragePath != "/var/lib/teamboard/uploads" {
		t.Fatalf("FileStoragePath = %q", cfg.FileStoragePath)
	}
	if cfg.VAPIDPublicKey != "pub" || cfg.VAPIDPrivateKey != "priv" {
		t.Fatalf("VAPID keys = %q/%q", cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	}
}

func TestLoadExplicitEnvFileWinsOverProcessEnv(t *testing.T) {
	clearConfigEnv()
	t.Cleanup(clearConfigEnv)

	envPath := writeEnvFile(t, t.TempDir(), `
PORT=9090
DATABASE_PATH=/var/lib/teamboard/teamboard.db
`)
	t.Setenv("TEAMBOARD_ENV_FILE", envPath)
	t.Setenv("PORT", "7777")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("Port = %q, want the explicit env file to win", cfg.Port)
	}
	if cfg.DatabasePath != "/var/lib/teamboard/teamboard.db" {
		t.Fatalf("DatabasePath = %q", cfg.DatabasePath)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	clearConfigEnv()

	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabasePath != ":memory:" {
		t.Fatalf("DatabasePath = %q, want %q", cfg.DatabasePath, ":memory:")
	}
	if cfg.TokenTTLHours != 24 {
		t.Fatalf("TokenTTLHours = %d, want 24", cfg.TokenTTLHours)
	}
	if cfg.CORSOrigins != "*" {
		t.Fatalf("CORSOrigins = %q, want %q", cfg.CORSOrigins, "*")
	}
	if cfg.FileStoragePath != "./data/uploads" {
		t.Fatalf("FileStoragePath = %q, want default", cfg.FileStoragePath)
	}
	if cfg.MaxUploadSize != 10485760 {
		t.Fatalf("MaxUploadSize = %d, want 10485760", cfg.MaxUploadSize)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	clearConfigEnv()

	t.Setenv("TOKEN_TTL_HOURS", "-5")
	t.Setenv("MAX_UPLOAD_SIZE", "not-a-number")

	cfg := Load()

	if cfg.TokenTTLHours != 24 {
		t.Fatalf("TokenTTLHours = %d, want fallback 24", cfg.TokenTTLHours)
	}
	if cfg.MaxUploadSize != 10485760 {
		t.Fatalf("MaxUploadSize = %d, want fallback", cfg.MaxUploadSize)
	}
}
