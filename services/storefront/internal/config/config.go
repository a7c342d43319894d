package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with STOREFRONT_CONFIG.
var ConfigPath = "config.yaml"

// Generation providers.
const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai-compat"
	ProviderOllama       = "ollama"
)

const (
	defaultGenerationModel          = "gemini-2.5-flash"
	defaultSearchRateLimitPerMinute = 30
	defaultSessionIdleMinutes       = 120
	defaultMaxRecommendations       = 4
	defaultSessionCookieName        = "cherry_session"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string   `yaml:"port"`
	LogLevel                 string   `yaml:"logLevel"`
	DatabaseURL              string   `yaml:"databaseURL"`
	RedisAddr                string   `yaml:"redisAddr"`
	RedisPassword            string   `yaml:"redisPassword"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins           []string `yaml:"allowedOrigins"`
	SearchRateLimitPerMinute int      `yaml:"searchRateLimitPerMinute"`
	SessionIdleMinutes       int      `yaml:"sessionIdleMinutes"`
	SessionCookieName        string   `yaml:"sessionCookieName"`
	SessionCookieSecure      bool     `yaml:"sessionCookieSecure"`
	GenerationProvider       string   `yaml:"generationProvider"`
	GenerationBaseURL        string   `yaml:"generationBaseURL"`
	GenerationModel          string   `yaml:"generationModel"`
	MaxRecommendations       int      `yaml:"maxRecommendations"`
	// APIKey is the lowest-priority source; see Credential.
	APIKey string `yaml:"apiKey"`
}

// Load reads config from path (defaults to ConfigPath, or STOREFRONT_CONFIG
// when set), applies environment overrides and defaults, and validates.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
		if v := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); v != "" {
			path = v
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("STOREFRONT_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STOREFRONT_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("STOREFRONT_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("STOREFRONT_SEARCH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SearchRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("STOREFRONT_SESSION_IDLE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SessionIdleMinutes = n
		}
	}
	if v := os.Getenv("STOREFRONT_SESSION_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SessionCookieSecure = b
		}
	}
	if v := os.Getenv("GENERATION_PROVIDER"); v != "" {
		cfg.GenerationProvider = strings.TrimSpace(v)
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	cfg.GenerationProvider = strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = ProviderGemini
	}
	if cfg.GenerationModel == "" && cfg.GenerationProvider == ProviderGemini {
		cfg.GenerationModel = defaultGenerationModel
	}
	if cfg.SearchRateLimitPerMinute == 0 {
		cfg.SearchRateLimitPerMinute = defaultSearchRateLimitPerMinute
	}
	if cfg.SessionIdleMinutes == 0 {
		cfg.SessionIdleMinutes = defaultSessionIdleMinutes
	}
	if cfg.MaxRecommendations == 0 {
		cfg.MaxRecommendations = defaultMaxRecommendations
	}
	if strings.TrimSpace(cfg.SessionCookieName) == "" {
		cfg.SessionCookieName = defaultSessionCookieName
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or STOREFRONT_PORT)")
	}
	switch cfg.GenerationProvider {
	case ProviderGemini:
	case ProviderOpenAICompat, ProviderOllama:
		if cfg.GenerationModel == "" {
			return fmt.Errorf("config: generationModel is required for provider %q", cfg.GenerationProvider)
		}
		if cfg.GenerationProvider == ProviderOpenAICompat && cfg.GenerationBaseURL == "" {
			return errors.New("config: generationBaseURL is required for provider \"openai-compat\"")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q (want gemini, openai-compat or ollama)", cfg.GenerationProvider)
	}
	if cfg.SearchRateLimitPerMinute < 0 {
		return errors.New("config: searchRateLimitPerMinute must be positive")
	}
	if cfg.SessionIdleMinutes < 0 {
		return errors.New("config: sessionIdleMinutes must be positive")
	}
	if cfg.MaxRecommendations < 0 {
		return errors.New("config: maxRecommendations must be positive")
	}
	return nil
}

// Credential returns the generation API key. It reads API_KEY, then
// GEMINI_API_KEY, then the file value, on every call, so rotating the key
// in the environment needs no restart. Ollama needs no key and always
// reports a placeholder.
func (c FileConfig) Credential() (string, bool) {
	for _, name := range []string{"API_KEY", "GEMINI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true
		}
	}
	if v := strings.TrimSpace(c.APIKey); v != "" {
		return v, true
	}
	if c.GenerationProvider == ProviderOllama {
		return "local", true
	}
	return "", false
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
