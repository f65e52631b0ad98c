package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// API keys. Absence is not checked here; calls fail downstream.
	GoogleAPIKey   string `env:"GOOGLE_API_KEY"`
	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`

	Addr string `env:"VOICECHAT_ADDR" envDefault:"127.0.0.1:8501"`

	// Logging
	LogDir    string `env:"LOG_DIR" envDefault:"logs"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogStdout bool   `env:"LOG_STDOUT" envDefault:"false"`

	// External services
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiBaseURL   string `env:"GEMINI_BASE_URL"`
	DeepgramModel   string `env:"DEEPGRAM_MODEL"`
	DeepgramBaseURL string `env:"DEEPGRAM_BASE_URL" envDefault:"https://api.deepgram.com"`
	TTSBaseURL      string `env:"TTS_BASE_URL" envDefault:"https://translate.google.com"`
	TTSLang         string `env:"TTS_LANG" envDefault:"en"`
	TTSCacheSize    int    `env:"TTS_CACHE_SIZE" envDefault:"128"`

	// Per-call timeouts
	STTTimeout time.Duration `env:"STT_TIMEOUT" envDefault:"30s"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	TTSTimeout time.Duration `env:"TTS_TIMEOUT" envDefault:"30s"`

	// Sessions
	MaxSessions        int           `env:"MAX_SESSIONS" envDefault:"256"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	MaxAudioBytes      int64         `env:"MAX_AUDIO_BYTES" envDefault:"10485760"`

	// CollapseRepeats hides repeated speaker labels in the rendered history
	CollapseRepeats bool `env:"COLLAPSE_REPEATS" envDefault:"false"`

	// ArchivePath enables the SQLite audit archive of ended sessions
	ArchivePath string `env:"ARCHIVE_PATH"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// LoadEnvFiles loads KEY=value pairs from the given .env files into the
// process environment. Variables already set are left alone; missing files
// are skipped.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses the environment into a Config
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env config: %w", err)
	}

	cfg.GoogleAPIKey = strings.TrimSpace(cfg.GoogleAPIKey)
	cfg.DeepgramAPIKey = strings.TrimSpace(cfg.DeepgramAPIKey)
	if cfg.MaxSessions <= 0 {
		return nil, fmt.Errorf("MAX_SESSIONS must be positive, got %d", cfg.MaxSessions)
	}
	if cfg.TTSCacheSize <= 0 {
		return nil, fmt.Errorf("TTS_CACHE_SIZE must be positive, got %d", cfg.TTSCacheSize)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MissingKeys names the API keys that are not set
func (c *Config) MissingKeys() []string {
	var missing []string
	if c.GoogleAPIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if c.DeepgramAPIKey == "" {
		missing = append(missing, "DEEPGRAM_API_KEY")
	}
	return missing
}

// SlogLevel returns the configured log level. Debug forces debug.
func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps a level name onto slog
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", name, err)
	}
	return level, nil
}
