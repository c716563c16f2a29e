package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	DatabasePath string

	JWTSecret     string
	TokenTTLDays  int
	UploadDir     string
	CORSOrigins   []string
	MaxMessageLen int
}

func Load() (*Config, error) {
	// Local development keeps secrets in .env; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{
		AppName: getEnv("APP_NAME", "HiChat API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 3000),

		DatabasePath: getEnv("DATABASE_PATH", "hichat.db"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		TokenTTLDays:  getEnvAsInt("TOKEN_EXPIRE_DAYS", 7),
		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		MaxMessageLen: getEnvAsInt("MAX_MESSAGE_LENGTH", 5000),
	}

	origins := getEnv("CORS_ORIGINS", "")
	if origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
