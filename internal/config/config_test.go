package config

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(zap.NewNop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.Temperature != 0.4 || cfg.VADThreshold != 0.5 {
		t.Errorf("Unexpected session defaults %v %v", cfg.Temperature, cfg.VADThreshold)
	}
	if cfg.TurnTimeout != 30*time.Second || cfg.JWTTTL != 24*time.Hour {
		t.Errorf("Unexpected durations %v %v", cfg.TurnTimeout, cfg.JWTTTL)
	}
	if cfg.StateBackend != StateBackendFile || cfg.StoreBackend != StoreBackendMemory {
		t.Errorf("Unexpected backends %s %s", cfg.StateBackend, cfg.StoreBackend)
	}
	if cfg.ResponseFormat != "wav" || cfg.MemoryCapacity != 20 {
		t.Errorf("Unexpected audio defaults %s %d", cfg.ResponseFormat, cfg.MemoryCapacity)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USER_STATE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TURN_TIMEOUT", "5s")
	t.Setenv("AUDIO_RESPONSE_FORMAT", "mp3")

	cfg, err := Load(zap.NewNop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.StateBackend != StateBackendRedis || cfg.TurnTimeout != 5*time.Second || cfg.ResponseFormat != "mp3" {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			AppEnv:         "production",
			OpenAIAPIKey:   "sk",
			JWTSecret:      "s",
			ChatProvider:   "openai",
			StateBackend:   StateBackendFile,
			StatePath:      "state.json",
			StoreBackend:   StoreBackendMemory,
			ResponseFormat: "wav",
			VADThreshold:   0.5,
			MemoryCapacity: 20,
			TurnTimeout:    time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"development without key", func(c *Config) { c.AppEnv = "development"; c.OpenAIAPIKey = "" }, ""},
		{"missing key", func(c *Config) { c.OpenAIAPIKey = "" }, "OPENAI_API_KEY"},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"gemini without key", func(c *Config) { c.ChatProvider = "gemini" }, "GEMINI_API_KEY"},
		{"unknown provider", func(c *Config) { c.ChatProvider = "claude" }, "CHAT_PROVIDER"},
		{"redis without url", func(c *Config) { c.StateBackend = StateBackendRedis }, "REDIS_URL"},
		{"unknown state backend", func(c *Config) { c.StateBackend = "s3" }, "USER_STATE_BACKEND"},
		{"mongo without uri", func(c *Config) { c.StoreBackend = StoreBackendMongo }, "MONGODB_URI"},
		{"bad format", func(c *Config) { c.ResponseFormat = "ogg" }, "AUDIO_RESPONSE_FORMAT"},
		{"bad threshold", func(c *Config) { c.VADThreshold = 2 }, "VAD_THRESHOLD"},
		{"zero memory", func(c *Config) { c.MemoryCapacity = 0 }, "MEMORY_CAPACITY"},
		{"negative rate", func(c *Config) { c.RatePerMinute = -1 }, "RATE_PER_MINUTE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
