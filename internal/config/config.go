package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Backends
const (
	StateBackendFile  = "file"
	StateBackendRedis = "redis"

	StoreBackendMemory = "memory"
	StoreBackendMongo  = "mongo"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	// Realtime voice upstream
	OpenAIAPIKey       string  `env:"OPENAI_API_KEY"`
	RealtimeURL        string  `env:"OPENAI_REALTIME_URL" envDefault:"wss://api.openai.com/v1/realtime"`
	RealtimeModel      string  `env:"OPENAI_REALTIME_MODEL" envDefault:"gpt-4o-realtime-preview"`
	DefaultVoice       string  `env:"DEFAULT_VOICE" envDefault:"alloy"`
	Temperature        float64 `env:"REALTIME_TEMPERATURE" envDefault:"0.4"`
	VADThreshold       float64 `env:"VAD_THRESHOLD" envDefault:"0.5"`
	TranscriptionModel string  `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-1"`

	// Text chat
	ChatProvider    string  `env:"CHAT_PROVIDER" envDefault:"openai"`
	ChatModel       string  `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL   string  `env:"OPENAI_BASE_URL"`
	ChatMaxTokens   int     `env:"CHAT_MAX_TOKENS" envDefault:"400"`
	ChatTemperature float32 `env:"CHAT_TEMPERATURE" envDefault:"0.7"`
	GeminiAPIKey    string  `env:"GEMINI_API_KEY"`
	GeminiModel     string  `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// Personas
	PersonaFile      string `env:"PERSONA_FILE" envDefault:"data/astrologers.json"`
	DefaultPersonaID string `env:"DEFAULT_PERSONA_ID"`

	// User state
	StateBackend string `env:"USER_STATE_BACKEND" envDefault:"file"`
	StatePath    string `env:"USER_STATE_PATH" envDefault:"data/user_state.json"`
	RedisURL     string `env:"REDIS_URL"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"kundli:user:"`

	// Conversations, wallet and reviews
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	MongoURI     string `env:"MONGODB_URI"`
	MongoDB      string `env:"MONGODB_DATABASE" envDefault:"kundli"`

	// Auth
	JWTSecret     string        `env:"JWT_SECRET"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"24h"`
	ServiceAPIKey string        `env:"SERVICE_API_KEY"`

	// Sessions
	TurnTimeout    time.Duration `env:"TURN_TIMEOUT" envDefault:"30s"`
	MemoryCapacity int           `env:"MEMORY_CAPACITY" envDefault:"20"`
	ResponseFormat string        `env:"AUDIO_RESPONSE_FORMAT" envDefault:"wav"`
	FFmpegPath     string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	// Billing
	RatePerMinute float64       `env:"RATE_PER_MINUTE" envDefault:"10"`
	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"@every 5m"`
	IdleTimeout   time.Duration `env:"CONVERSATION_IDLE_TIMEOUT" envDefault:"30m"`
}

// Development reports whether the process runs with developer settings
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// Load reads .env when present, then the environment
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file loaded", zap.Error(err))
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	var errs []error

	if c.OpenAIAPIKey == "" && !c.Development() {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	switch c.ChatProvider {
	case "openai", "mock":
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini chat provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CHAT_PROVIDER %q", c.ChatProvider))
	}

	switch c.StateBackend {
	case StateBackendFile:
		if c.StatePath == "" {
			errs = append(errs, errors.New("USER_STATE_PATH is required for the file backend"))
		}
	case StateBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown USER_STATE_BACKEND %q", c.StateBackend))
	}

	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	if c.ResponseFormat != "wav" && c.ResponseFormat != "mp3" {
		errs = append(errs, fmt.Errorf("AUDIO_RESPONSE_FORMAT must be wav or mp3, got %q", c.ResponseFormat))
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("VAD_THRESHOLD must be within [0, 1], got %v", c.VADThreshold))
	}
	if c.MemoryCapacity <= 0 {
		errs = append(errs, errors.New("MEMORY_CAPACITY must be positive"))
	}
	if c.TurnTimeout <= 0 {
		errs = append(errs, errors.New("TURN_TIMEOUT must be positive"))
	}
	if c.RatePerMinute < 0 {
		errs = append(errs, errors.New("RATE_PER_MINUTE cannot be negative"))
	}

	return errors.Join(errs...)
}
