package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/ghost-tutor/internal/llm"
)

// EnvPrefix is the namespace prefix for all Ghost Tutor environment variables.
const EnvPrefix = "GHOST_TUTOR_"

// Config holds all application configuration. API keys are read from the
// environment only and never appear in the config file.
type Config struct {
	Addr          string `yaml:"addr"`
	DBPath        string `yaml:"db_path"`
	RecordingsDir string `yaml:"recordings_dir"`
	TranscriptDir string `yaml:"transcript_dir"`
	LogLevel      string `yaml:"log_level"`
	IdleTimeout   string `yaml:"idle_timeout"`

	User       User        `yaml:"user"`
	Voice      Voice       `yaml:"voice"`
	Tutor      Tutor       `yaml:"tutor"`
	GDrive     GDrive      `yaml:"gdrive"`
	Companions []Companion `yaml:"companions"`

	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

type User struct {
	Name   string `yaml:"name"`
	Avatar string `yaml:"avatar"`
}

type Voice struct {
	Model           string `yaml:"model"`
	Language        string `yaml:"language"`
	SampleRate      int    `yaml:"sample_rate"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

type Tutor struct {
	// Model is "provider/model", e.g. "openai/gpt-4o-mini".
	Model      string `yaml:"model"`
	RecapModel string `yaml:"recap_model"`
	MaxTokens  int    `yaml:"max_tokens"`
}

type GDrive struct {
	FolderID        string `yaml:"folder_id"`
	CredentialsFile string `yaml:"credentials_file"`
	Interval        string `yaml:"interval"`
}

// Companion seeds the companion library on first start.
type Companion struct {
	Name            string `yaml:"name"`
	Subject         string `yaml:"subject"`
	Topic           string `yaml:"topic"`
	Voice           string `yaml:"voice"`
	Style           string `yaml:"style"`
	DurationMinutes int    `yaml:"duration_minutes"`
}

func defaults() Config {
	return Config{
		Addr:          ":8080",
		DBPath:        "data/ghost-tutor.db",
		RecordingsDir: "data/recordings",
		TranscriptDir: "data/transcripts",
		LogLevel:      "info",
		IdleTimeout:   "5m",
		User:          User{Name: "Learner"},
		Voice: Voice{
			Model:           "nova-2",
			Language:        "en-US",
			SampleRate:      16000,
			FramesPerBuffer: 1024,
		},
		Tutor: Tutor{
			Model:     "openai/gpt-4o-mini",
			MaxTokens: 300,
		},
		GDrive: GDrive{
			CredentialsFile: "./service-account.json",
			Interval:        "5m",
		},
	}
}

// Load reads the YAML file at path when it exists, applies environment
// overrides, loads secrets and validates the result. Validation problems are
// returned as warnings; only an unreadable or malformed file is an error.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedIdleTimeout returns IdleTimeout as a duration. "0" or "off" disable
// the idle timeout; invalid values fall back to five minutes.
func (c *Config) ParsedIdleTimeout() time.Duration {
	switch strings.ToLower(strings.TrimSpace(c.IdleTimeout)) {
	case "0", "off", "disabled":
		return 0
	}
	d, err := time.ParseDuration(c.IdleTimeout)
	if err != nil || d < 0 {
		return 5 * time.Minute
	}
	return d
}

func (c *Config) ParsedSyncInterval() time.Duration {
	d, err := time.ParseDuration(c.GDrive.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// RecapModel falls back to the tutor model.
func (c *Config) RecapModel() string {
	if c.Tutor.RecapModel != "" {
		return c.Tutor.RecapModel
	}
	return c.Tutor.Model
}

// APIKeyFor returns the secret for an llm provider.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func applyEnvOverrides(cfg *Config) {
	strs := []struct {
		key string
		dst *string
	}{
		{"ADDR", &cfg.Addr},
		{"DB_PATH", &cfg.DBPath},
		{"RECORDINGS_DIR", &cfg.RecordingsDir},
		{"TRANSCRIPT_DIR", &cfg.TranscriptDir},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"USER_NAME", &cfg.User.Name},
		{"USER_AVATAR", &cfg.User.Avatar},
		{"VOICE_MODEL", &cfg.Voice.Model},
		{"VOICE_LANGUAGE", &cfg.Voice.Language},
		{"TUTOR_MODEL", &cfg.Tutor.Model},
		{"RECAP_MODEL", &cfg.Tutor.RecapModel},
		{"GDRIVE_FOLDER_ID", &cfg.GDrive.FolderID},
		{"GOOGLE_CREDENTIALS_FILE", &cfg.GDrive.CredentialsFile},
		{"GDRIVE_INTERVAL", &cfg.GDrive.Interval},
	}
	for _, s := range strs {
		if v := os.Getenv(EnvPrefix + s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SAMPLE_RATE", &cfg.Voice.SampleRate},
		{"FRAMES_PER_BUFFER", &cfg.Voice.FramesPerBuffer},
		{"TUTOR_MAX_TOKENS", &cfg.Tutor.MaxTokens},
	}
	for _, i := range ints {
		if v := os.Getenv(EnvPrefix + i.key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*i.dst = n
			}
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured, calls cannot connect. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}

	models := []struct{ field, value string }{{"tutor.model", cfg.Tutor.Model}}
	if cfg.Tutor.RecapModel != "" {
		models = append(models, struct{ field, value string }{"tutor.recap_model", cfg.Tutor.RecapModel})
	}
	for _, m := range models {
		provider, _, err := llm.ParseModel(m.value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, expected provider/model.", m.field, m.value))
			continue
		}
		if cfg.APIKeyFor(provider) == "" {
			warnings = append(warnings, fmt.Sprintf("No API key for %s provider %q. Set %s%s_API_KEY.",
				m.field, provider, EnvPrefix, strings.ToUpper(provider)))
		}
	}

	if _, err := time.ParseDuration(cfg.IdleTimeout); err != nil && cfg.ParsedIdleTimeout() != 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid idle_timeout %q, using default 5m.", cfg.IdleTimeout))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		warnings = append(warnings, fmt.Sprintf("Unknown log_level %q, using info.", cfg.LogLevel))
	}

	if cfg.GDrive.FolderID != "" {
		if _, err := os.Stat(cfg.GDrive.CredentialsFile); err != nil {
			warnings = append(warnings, fmt.Sprintf("Google credentials file %q not readable, Drive sync is disabled.", cfg.GDrive.CredentialsFile))
		}
	}

	for i, c := range cfg.Companions {
		if c.Name == "" || c.Subject == "" || c.Topic == "" {
			warnings = append(warnings, fmt.Sprintf("Companion %d is missing name, subject or topic and will be skipped.", i+1))
		}
	}

	return warnings
}
