package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"STOREFRONT_CONFIG", "STOREFRONT_PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR",
		"REDIS_PASSWORD", "STOREFRONT_TRUSTED_PROXY_CIDRS", "STOREFRONT_ALLOWED_ORIGINS",
		"STOREFRONT_SEARCH_RATE_LIMIT", "STOREFRONT_SESSION_IDLE_MINUTES",
		"STOREFRONT_SESSION_COOKIE_SECURE", "GENERATION_PROVIDER", "GENERATION_BASE_URL",
		"GENERATION_MODEL", "API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "port: \"8080\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GenerationProvider != ProviderGemini || cfg.GenerationModel != "gemini-2.5-flash" {
		t.Fatalf("unexpected generation defaults: %+v", cfg)
	}
	if cfg.SearchRateLimitPerMinute != 30 || cfg.SessionIdleMinutes != 120 || cfg.MaxRecommendations != 4 {
		t.Fatalf("unexpected numeric defaults: %+v", cfg)
	}
	if cfg.SessionCookieName != "cherry_session" {
		t.Fatalf("unexpected cookie name %q", cfg.SessionCookieName)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, strings.Join([]string{
		`port: "8080"`,
		`redisAddr: "file:6379"`,
		`searchRateLimitPerMinute: 5`,
	}, "\n"))
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("STOREFRONT_SEARCH_RATE_LIMIT", "12")
	t.Setenv("STOREFRONT_TRUSTED_PROXY_CIDRS", "10.0.0.0/8, ,192.168.0.1")
	t.Setenv("GENERATION_PROVIDER", "OLLAMA")
	t.Setenv("GENERATION_MODEL", "llama3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "env:6379" || cfg.SearchRateLimitPerMinute != 12 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.TrustedProxyCIDRs) != 2 {
		t.Fatalf("unexpected proxies %v", cfg.TrustedProxyCIDRs)
	}
	if cfg.GenerationProvider != ProviderOllama || cfg.GenerationModel != "llama3" {
		t.Fatalf("unexpected provider %q model %q", cfg.GenerationProvider, cfg.GenerationModel)
	}
}

func TestLoadUsesStorefrontConfigEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOREFRONT_CONFIG", writeConfig(t, "port: \"9090\"\n"))
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port from STOREFRONT_CONFIG file, got %q", cfg.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing port":         "logLevel: info\n",
		"unknown provider":     "port: \"1\"\ngenerationProvider: magic\n",
		"openai without url":   "port: \"1\"\ngenerationProvider: openai-compat\ngenerationModel: m\n",
		"ollama without model": "port: \"1\"\ngenerationProvider: ollama\n",
		"negative rate limit":  "port: \"1\"\nsearchRateLimitPerMinute: -1\n",
		"negative max results": "port: \"1\"\nmaxRecommendations: -2\n",
		"malformed yaml":       "port: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestCredentialPrecedenceIsLive(t *testing.T) {
	clearEnv(t)
	cfg := FileConfig{APIKey: "from-file", GenerationProvider: ProviderGemini}

	if key, ok := cfg.Credential(); !ok || key != "from-file" {
		t.Fatalf("expected file key, got %q %v", key, ok)
	}
	t.Setenv("GEMINI_API_KEY", "gemini-env")
	if key, _ := cfg.Credential(); key != "gemini-env" {
		t.Fatalf("expected GEMINI_API_KEY, got %q", key)
	}
	t.Setenv("API_KEY", "api-env")
	if key, _ := cfg.Credential(); key != "api-env" {
		t.Fatalf("expected API_KEY to win, got %q", key)
	}

	empty := FileConfig{GenerationProvider: ProviderGemini}
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	if _, ok := empty.Credential(); ok {
		t.Fatalf("expected no credential")
	}
	local := FileConfig{GenerationProvider: ProviderOllama}
	if _, ok := local.Credential(); !ok {
		t.Fatalf("ollama needs no key")
	}
}
