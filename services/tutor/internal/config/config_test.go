package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const baseConfig = "port: \"8083\"\ndatabaseURL: sqlite:file:tutor.db\nauthServiceURL: http://localhost:8081\nllmAPIKey: k\nllmModel: gpt-4o\n"

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, baseConfig+"llmTimeout: 30s\n")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_MODEL", "claude-test")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_MAX_TOKENS", "800")
	t.Setenv("TUTOR_HISTORY_LIMIT", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLMProvider != "anthropic" || cfg.LLMModel != "claude-test" || cfg.Temperature == nil || *cfg.Temperature != 0.2 || cfg.MaxTokens != 800 || cfg.HistoryLimit != 10 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if d, _ := ParseDuration(cfg.LLMTimeout, time.Minute); d != 30*time.Second {
		t.Fatalf("timeout %v", d)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing key", "port: \"1\"\ndatabaseURL: x\nauthServiceURL: y\nllmModel: m\n", "llmAPIKey is required"},
		{"unknown provider", baseConfig + "llmProvider: ollama\n", "unsupported llmProvider"},
		{"hot temperature", baseConfig + "temperature: 3\n", "temperature must be between"},
		{"limit without redis", baseConfig + "chatRateLimitPerMinute: 5\n", "redisAddr is required"},
		{"bad timeout", baseConfig + "llmTimeout: ages\n", "invalid llmTimeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadKeepsZeroTemperature(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseConfig+"temperature: 0\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Fatalf("explicit zero temperature lost: %v", cfg.Temperature)
	}
	cfg, err = Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Temperature != nil {
		t.Fatalf("unset temperature must stay nil, got %v", *cfg.Temperature)
	}
}
