package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	AllowedOrigin string

	// DatabaseURL selects the postgres store; empty or placeholder values run
	// the in-memory fallback unless StrictDatabase is set.
	DatabaseURL    string
	StrictDatabase bool
	AutoMigrate    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisLedger keeps the local fallback ledger in redis instead of LedgerPath.
	RedisLedger bool

	DashboardCacheTTL time.Duration
	VerifyDelay       time.Duration

	LedgerPath      string
	ReceiptsDir     string
	ReceiptsBaseURL string

	AuthSecret            string
	AccessTokenTTLMinutes int
	LoginAttempts         int
	LoginWindow           time.Duration
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL := positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StrictDatabase:        getBool("STRICT_DATABASE", false),
		AutoMigrate:           getBool("AUTO_MIGRATE", false),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		RedisLedger:           getBool("REDIS_LEDGER", false),
		DashboardCacheTTL:     time.Duration(nonNegativeInt("DASHBOARD_CACHE_TTL_SECONDS", 30)) * time.Second,
		VerifyDelay:           time.Duration(nonNegativeInt("VERIFY_DELAY_MS", 500)) * time.Millisecond,
		LedgerPath:            getEnv("LEDGER_PATH", "data/ledger.json"),
		ReceiptsDir:           strings.TrimSpace(os.Getenv("RECEIPTS_DIR")),
		ReceiptsBaseURL:       getEnv("RECEIPTS_BASE_URL", "/receipts"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LoginAttempts:         positiveInt("LOGIN_RATE_LIMIT", 5),
		LoginWindow:           time.Duration(positiveInt("LOGIN_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

var placeholderMarkers = []string{"your-", "placeholder", "example", "changeme"}

// UsesRealBackend reports whether DatabaseURL looks like a configured
// connection string rather than a template value.
func (c Config) UsesRealBackend() bool {
	url := strings.ToLower(c.DatabaseURL)
	if url == "" {
		return false
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(url, marker) {
			return false
		}
	}
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func nonNegativeInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
