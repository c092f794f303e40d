package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported STT_PROVIDER values.
const (
	ProviderWhisper    = "whisper"
	ProviderOpenAI     = "openai"
	ProviderWhisperCpp = "whispercpp"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":4000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"180s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`

	Provider string `env:"STT_PROVIDER" envDefault:"whisper"`

	// Model parameters shared by every backend.
	ModelSize        string `env:"MODEL_SIZE" envDefault:"base"`
	ModelDevice      string `env:"MODEL_DEVICE" envDefault:"cpu"`
	ModelComputeType string `env:"MODEL_COMPUTE_TYPE" envDefault:"int8"`

	Language          string        `env:"TRANSCRIBE_LANGUAGE" envDefault:"pt"`
	Temperature       float64       `env:"TRANSCRIBE_TEMPERATURE" envDefault:"0"`
	TranscribeTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"120s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"150s"` // queue wait + model call

	Workers   int `env:"WORKERS" envDefault:"1"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"16"`

	MaxUploadBytes  int64  `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`
	TempDir         string `env:"TEMP_DIR"`
	TempSuffix      string `env:"TEMP_SUFFIX" envDefault:".wav"`
	PreprocessAudio bool   `env:"PREPROCESS_AUDIO" envDefault:"false"`

	TempSweepAge      time.Duration `env:"TEMP_SWEEP_AGE" envDefault:"1h"`
	TempSweepInterval time.Duration `env:"TEMP_SWEEP_INTERVAL" envDefault:"10m"`

	WhisperURL   string `env:"WHISPER_URL" envDefault:"http://localhost:8000/v1/audio/transcriptions"`
	WhisperModel string `env:"WHISPER_MODEL"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"whisper-1"`

	WhisperCppModel   string `env:"WHISPERCPP_MODEL"`
	WhisperCppThreads uint   `env:"WHISPERCPP_THREADS" envDefault:"0"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	Provider string
	Language string
	Workers  int
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.Provider != "" {
		cfg.Provider = overrides.Provider
	}
	if overrides.Language != "" {
		cfg.Language = overrides.Language
	}
	if overrides.Workers > 0 {
		cfg.Workers = overrides.Workers
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = "Systran/faster-whisper-" + cfg.ModelSize
	}
	if cfg.WhisperCppModel == "" {
		cfg.WhisperCppModel = defaultWhisperCppModel(cfg.ModelSize, cfg.ModelComputeType)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that env tags can't express.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderWhisper:
		if c.WhisperURL == "" {
			return fmt.Errorf("WHISPER_URL is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderWhisperCpp:
		if c.WhisperCppModel == "" {
			return fmt.Errorf("WHISPERCPP_MODEL is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q (supported: whisper, openai, whispercpp)", c.Provider)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be >= 1, got %d", c.QueueSize)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be >= 1, got %d", c.MaxUploadBytes)
	}
	if c.TranscribeTimeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT must be positive, got %s", c.TranscribeTimeout)
	}
	if c.RequestTimeout < c.TranscribeTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must be at least TRANSCRIBE_TIMEOUT (%s)", c.RequestTimeout, c.TranscribeTimeout)
	}
	// An upload's temp file lives at most RequestTimeout; the response must
	// still be writable after that.
	if c.WriteTimeout > 0 && c.WriteTimeout <= c.RequestTimeout {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT (%s) must exceed REQUEST_TIMEOUT (%s)", c.WriteTimeout, c.RequestTimeout)
	}
	if c.TempSweepAge > 0 && c.TempSweepAge <= c.RequestTimeout {
		return fmt.Errorf("TEMP_SWEEP_AGE (%s) must exceed REQUEST_TIMEOUT (%s)", c.TempSweepAge, c.RequestTimeout)
	}
	return nil
}

// defaultWhisperCppModel maps the model size and compute type onto the ggml file
// naming used by whisper.cpp releases. int8 selects the q8_0 quantization.
func defaultWhisperCppModel(size, computeType string) string {
	name := "ggml-" + size
	if computeType == "int8" {
		name += "-q8_0"
	}
	return "./models/" + name + ".bin"
}
