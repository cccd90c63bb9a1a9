package config

import (
	"encoding/json"
	"os"

	"github.com/cherishly/cherishly/internal/flagx"
	"github.com/cherishly/cherishly/internal/timex"
)

// JsonConfig is the intermediate DTO for reading JSON configuration files.
// Duration fields accept both "5m" strings and raw nanoseconds.
type JsonConfig struct {
	EndpointAddr                string          `json:"endpoint_addr"`
	DatabaseDSN                 string          `json:"database_dsn"`
	SecretKey                   string          `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	TokensPerCredit             *int64          `json:"tokens_per_credit"`
	PlanBaseCredits             *int64          `json:"plan_base_credits"`
	AIBaseURL                   string          `json:"ai_base_url"`
	AIAPIKey                    string          `json:"ai_api_key"`
	AIModel                     string          `json:"ai_model"`
	AITimeout                   *timex.Duration `json:"ai_timeout"`
	PeerTimeout                 *timex.Duration `json:"peer_timeout"`
	SyncPullLimit               *int            `json:"sync_pull_limit"`
	SyncInterval                *timex.Duration `json:"sync_interval"`
	RedisAddr                   string          `json:"redis_addr"`
	RateLimitPerMinute          *int64          `json:"rate_limit_per_minute"`
}

// parseJson overlays values from the JSON file named by -c/-config, if any.
// Absent fields keep their current values; an unreadable or invalid file
// panics, since starting with half a config is worse than not starting.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.TokensPerCredit != nil {
		config.TokensPerCredit = *c.TokensPerCredit
	}
	if c.PlanBaseCredits != nil {
		config.PlanBaseCredits = *c.PlanBaseCredits
	}
	if c.AIBaseURL != "" {
		config.AIBaseURL = c.AIBaseURL
	}
	if c.AIAPIKey != "" {
		config.AIAPIKey = c.AIAPIKey
	}
	if c.AIModel != "" {
		config.AIModel = c.AIModel
	}
	if c.AITimeout != nil {
		config.AITimeout = c.AITimeout.Duration
	}
	if c.PeerTimeout != nil {
		config.PeerTimeout = c.PeerTimeout.Duration
	}
	if c.SyncPullLimit != nil {
		config.SyncPullLimit = *c.SyncPullLimit
	}
	if c.SyncInterval != nil {
		config.SyncInterval = c.SyncInterval.Duration
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.RateLimitPerMinute != nil {
		config.RateLimitPerMinute = *c.RateLimitPerMinute
	}
}
