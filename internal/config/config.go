package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	JWTSecret            string
	JWTIssuer            string
	JWTAudience          string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	OAuthCodeTTL         time.Duration
	LockoutMaxAttempts   int
	LockoutDuration      time.Duration
	Argon2Time           uint32
	Argon2Memory         uint32
	Argon2Threads        uint8
	CookieSecure         bool
	CookieDomain         string
	CookieSameSite       string
	FrontendURL          string
	AdminEmail           string
	AdminPassword        string
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if len(secret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		JWTSecret:            secret,
		JWTIssuer:            getEnv("JWT_ISSUER", "petcare-api"),
		JWTAudience:          getEnv("JWT_AUDIENCE", "petcare-app"),
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		VerificationTokenTTL: getDuration("VERIFICATION_TOKEN_TTL", 24*time.Hour),
		ResetTokenTTL:        getDuration("RESET_TOKEN_TTL", time.Hour),
		OAuthCodeTTL:         getDuration("OAUTH_CODE_TTL", 30*time.Second),
		LockoutMaxAttempts:   getInt("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutDuration:      getDuration("LOCKOUT_DURATION", 15*time.Minute),
		Argon2Time:           uint32(getInt("ARGON2_TIME", 3)),
		Argon2Memory:         uint32(getInt("ARGON2_MEMORY_KB", 64*1024)),
		Argon2Threads:        uint8(getInt("ARGON2_THREADS", 2)),
		CookieSecure:         getBool("COOKIE_SECURE", false),
		CookieDomain:         os.Getenv("COOKIE_DOMAIN"),
		CookieSameSite:       getEnv("COOKIE_SAME_SITE", "Strict"),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:5173"),
		AdminEmail:           strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		ServiceName:          getEnv("SERVICE_NAME", "petcare-auth"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LockoutMaxAttempts < 1 {
		return Config{}, fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.OAuthCodeTTL > time.Minute {
		return Config{}, fmt.Errorf("OAUTH_CODE_TTL must not exceed one minute")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}
