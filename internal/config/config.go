package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AMQPURL                string
	TenantID               string
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerCode            string
	BusinessTimezone       string
	TaxRatePercent         float64
	TipRatePercent         float64
	SummaryCacheTTLSeconds int
	LogLevel               string
	LogPretty              bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	summaryTTL, err := strconv.Atoi(getEnv("SUMMARY_CACHE_TTL_SECONDS", "30"))
	if err != nil || summaryTTL < 1 {
		summaryTTL = 30
	}
	pretty, _ := strconv.ParseBool(getEnv("LOG_PRETTY", "false"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AMQPURL:                strings.TrimSpace(os.Getenv("AMQP_URL")),
		TenantID:               getEnv("DEFAULT_TENANT_ID", "main"),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		ManagerCode:            strings.TrimSpace(os.Getenv("MANAGER_CODE")),
		BusinessTimezone:       getEnv("BUSINESS_TIMEZONE", "America/Santo_Domingo"),
		TaxRatePercent:         getPercent("TAX_RATE_PERCENT", 18),
		TipRatePercent:         getPercent("TIP_RATE_PERCENT", 10),
		SummaryCacheTTLSeconds: summaryTTL,
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:              pretty,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves BusinessTimezone, falling back to a fixed UTC-4 zone when the
// tz database is not available.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.FixedZone("AST", -4*60*60)
	}
	return loc
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPercent(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 100 {
		return fallback
	}
	return v
}
