package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	Environment     string
	DatabasePath    string
	JWTSecret       string
	TokenTTLHours   int
	CORSOrigins     string
	MaxUploadSize   int64
	FileStoragePath string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

func Load() *Config {
	// An explicit env file wins; otherwise pick up a local .env if present.
	if path := os.Getenv("TEAMBOARD_ENV_FILE"); path != "" {
		godotenv.Overload(path)
	} else {
		godotenv.Load()
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		DatabasePath:    getEnv("DATABASE_PATH", ":memory:"),
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		TokenTTLHours:   parseInt(getEnv("TOKEN_TTL_HOURS", "24"), 24),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
		MaxUploadSize:   parseInt64(getEnv("MAX_UPLOAD_SIZE", "10485760"), 10485760), // 10MB default
		FileStoragePath: getEnv("FILE_STORAGE_PATH", "./data/uploads"),
		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseInt(s string, fallback int) int {
	val, err := strconv.Atoi(s)
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}

func parseInt64(s string, fallback int64) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}
