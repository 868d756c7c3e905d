package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with TUTOR_CONFIG.
var ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string `yaml:"port"`
	DatabaseURL    string `yaml:"databaseURL"`
	LogLevel       string `yaml:"logLevel"`
	AuthServiceURL string `yaml:"authServiceURL"`
	AuthJWKSURL    string `yaml:"authJwksURL"`
	JWTIssuer      string `yaml:"jwtIssuer"`
	JWTAudience    string `yaml:"jwtAudience"`
	JWTLeeway      string `yaml:"jwtLeeway"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	TrustedProxies string `yaml:"trustedProxies"`

	LLMProvider  string   `yaml:"llmProvider"`
	LLMBaseURL   string   `yaml:"llmBaseURL"`
	LLMAPIKey    string   `yaml:"llmAPIKey"`
	LLMModel     string   `yaml:"llmModel"`
	MaxTokens    int      `yaml:"maxTokens"`
	Temperature  *float64 `yaml:"temperature"`
	LLMTimeout   string   `yaml:"llmTimeout"`
	HistoryLimit int      `yaml:"historyLimit"`

	ChatRateLimitPerMinute int `yaml:"chatRateLimitPerMinute"`
}

// Load reads config from path (defaults to ConfigPath) and applies env overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if v := os.Getenv("TUTOR_CONFIG"); v != "" {
		path = v
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("TUTOR_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AUTH_SERVICE_URL"); v != "" {
		cfg.AuthServiceURL = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = &f
		}
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		cfg.LLMTimeout = v
	}
	if v := os.Getenv("TUTOR_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv("TUTOR_CHAT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChatRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.AuthServiceURL == "" {
		return errors.New("config: authServiceURL is required (set in config.yaml)")
	}
	if cfg.LLMAPIKey == "" {
		return errors.New("config: llmAPIKey is required (set in config.yaml or LLM_API_KEY)")
	}
	if cfg.LLMModel == "" {
		return errors.New("config: llmModel is required (set in config.yaml)")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "openai", "openai-compat", "openai_compat", "gemini", "anthropic":
	default:
		return fmt.Errorf("config: unsupported llmProvider %q", cfg.LLMProvider)
	}
	if cfg.MaxTokens < 0 || cfg.HistoryLimit < 0 || cfg.ChatRateLimitPerMinute < 0 {
		return errors.New("config: maxTokens, historyLimit and chatRateLimitPerMinute must be >= 0")
	}
	if cfg.Temperature != nil && (*cfg.Temperature < 0 || *cfg.Temperature > 2) {
		return errors.New("config: temperature must be between 0 and 2")
	}
	if cfg.ChatRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when chatRateLimitPerMinute is set")
	}
	for name, raw := range map[string]string{"llmTimeout": cfg.LLMTimeout, "jwtLeeway": cfg.JWTLeeway} {
		if _, err := ParseDuration(raw, 0); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	return nil
}

// ParseDuration parses an optional duration string, returning def when empty.
func ParseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return dur, nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
