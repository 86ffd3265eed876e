package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override API keys from the config file.
const (
	EnvGroqAPIKey   = "GOSTT_LIVE_GROQ_API_KEY"
	EnvOpenAIAPIKey = "GOSTT_LIVE_OPENAI_API_KEY"
)

// Config holds all application configuration.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Analyze    AnalyzeConfig    `yaml:"analyze"`
	Retry      RetryConfig      `yaml:"retry"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Server     ServerConfig     `yaml:"server"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	LogLevel   string           `yaml:"log_level"`
}

// AudioConfig holds audio capture and chunking settings.
type AudioConfig struct {
	Device       string `yaml:"device"`      // input device name, empty for the system default
	SampleRate   uint32 `yaml:"sample_rate"` // 0 uses the device's native rate
	Channels     uint32 `yaml:"channels"`    // 0 uses the device's native channel count
	ChunkSeconds uint32 `yaml:"chunk_seconds"`
	OutputDir    string `yaml:"output_dir"`
	CleanOnStart bool   `yaml:"clean_on_start"`
}

// TranscribeConfig holds speech-to-text backend settings.
type TranscribeConfig struct {
	Backend   string        `yaml:"backend"` // "groq", "command" or "whisper"
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Language  string        `yaml:"language"`
	Command   []string      `yaml:"command"`
	ModelPath string        `yaml:"model_path"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AnalyzeConfig holds semantic analysis backend settings.
type AnalyzeConfig struct {
	Backend     string        `yaml:"backend"` // "openai" or "none"
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxInFlight int           `yaml:"max_in_flight"`
	QueueSize   int           `yaml:"queue_size"` // transcripts waiting for a free worker
}

// RetryConfig bounds per-item retries. MaxAttempts of 1 disables retrying.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DiscoveryConfig holds chunk discovery settings.
type DiscoveryConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ServerConfig holds the event/metrics HTTP server settings.
type ServerConfig struct {
	Listen string `yaml:"listen"` // empty disables the server
}

// HotkeyConfig holds the session toggle hotkey.
type HotkeyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-live")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory local whisper models are stored in.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".local", "share", "gostt-live", "models")
}

// DefaultOutputDir returns the directory chunk files are written to.
func DefaultOutputDir() string {
	return filepath.Join(os.TempDir(), "gostt-live")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			ChunkSeconds: 5,
			OutputDir:    DefaultOutputDir(),
			CleanOnStart: true,
		},
		Transcribe: TranscribeConfig{
			Backend:   "groq",
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "whisper-large-v3-turbo",
			Language:  "pt",
			ModelPath: filepath.Join(DefaultModelsDir(), "ggml-base.bin"),
			Timeout:   30 * time.Second,
		},
		Analyze: AnalyzeConfig{
			Backend:     "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     30 * time.Second,
			MaxInFlight: 4,
			QueueSize:   16,
		},
		Retry: RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			PollInterval: 100 * time.Millisecond,
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "l"},
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Audio.OutputDir = expandTilde(cfg.Audio.OutputDir)
	cfg.Transcribe.ModelPath = expandTilde(cfg.Transcribe.ModelPath)

	return cfg, nil
}

// ApplyEnv overrides API keys with values from the environment, if set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvGroqAPIKey); v != "" {
		c.Transcribe.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.Analyze.APIKey = v
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Audio.ChunkSeconds == 0 {
		return fmt.Errorf("audio.chunk_seconds must be > 0")
	}
	if c.Audio.OutputDir == "" {
		return fmt.Errorf("audio.output_dir must not be empty")
	}

	switch c.Transcribe.Backend {
	case "groq":
	case "command":
		if len(c.Transcribe.Command) == 0 {
			return fmt.Errorf("transcribe.command must not be empty when backend is \"command\"")
		}
	case "whisper":
		if c.Transcribe.ModelPath == "" {
			return fmt.Errorf("transcribe.model_path must not be empty when backend is \"whisper\"")
		}
		// whisper.cpp consumes 16kHz mono, so capture has to produce it.
		if c.Audio.SampleRate != 16000 || c.Audio.Channels != 1 {
			return fmt.Errorf("whisper backend requires audio.sample_rate 16000 and audio.channels 1")
		}
	default:
		return fmt.Errorf("transcribe.backend must be \"groq\", \"command\" or \"whisper\", got %q", c.Transcribe.Backend)
	}

	switch c.Analyze.Backend {
	case "openai", "none":
	default:
		return fmt.Errorf("analyze.backend must be \"openai\" or \"none\", got %q", c.Analyze.Backend)
	}

	if c.Analyze.MaxInFlight <= 0 {
		return fmt.Errorf("analyze.max_in_flight must be > 0")
	}
	if c.Analyze.QueueSize <= 0 {
		return fmt.Errorf("analyze.queue_size must be > 0")
	}
	if c.Analyze.Backend != "none" && c.Analyze.Timeout <= 0 {
		return fmt.Errorf("analyze.timeout must be > 0")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}

	if c.Discovery.PollInterval <= 0 {
		return fmt.Errorf("discovery.poll_interval must be > 0")
	}

	if c.Hotkey.Enabled && len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty when hotkey is enabled")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a slog.Level. Unknown values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# gostt-live configuration
# API keys may also be supplied via GOSTT_LIVE_GROQ_API_KEY and
# GOSTT_LIVE_OPENAI_API_KEY.
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0600); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
