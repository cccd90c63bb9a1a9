package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays values from a .env file (if present) and the process
// environment. Missing or malformed variables leave the current value alone.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("CHERISHLY_ADDR", &config.EndpointAddr)
	setString("CHERISHLY_DATABASE_DSN", &config.DatabaseDSN)
	setString("CHERISHLY_SECRET_KEY", &config.SecretKey)
	setDuration("CHERISHLY_ACCESS_TOKEN_VALIDITY", &config.AccessTokenValidityDuration)
	setInt64("CHERISHLY_TOKENS_PER_CREDIT", &config.TokensPerCredit)
	setInt64("CHERISHLY_PLAN_BASE_CREDITS", &config.PlanBaseCredits)
	setString("CHERISHLY_AI_BASE_URL", &config.AIBaseURL)
	setString("CHERISHLY_AI_API_KEY", &config.AIAPIKey)
	setString("CHERISHLY_AI_MODEL", &config.AIModel)
	setDuration("CHERISHLY_AI_TIMEOUT", &config.AITimeout)
	setDuration("CHERISHLY_PEER_TIMEOUT", &config.PeerTimeout)
	setDuration("CHERISHLY_SYNC_INTERVAL", &config.SyncInterval)
	setString("CHERISHLY_REDIS_ADDR", &config.RedisAddr)
	setInt64("CHERISHLY_RATE_LIMIT_PER_MINUTE", &config.RateLimitPerMinute)

	if v, ok := os.LookupEnv("CHERISHLY_SYNC_PULL_LIMIT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.SyncPullLimit = n
		}
	}
}
