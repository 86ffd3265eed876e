package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Audio.ChunkSeconds != 5 {
		t.Errorf("Audio.ChunkSeconds = %d, want 5", cfg.Audio.ChunkSeconds)
	}
	if cfg.Audio.SampleRate != 0 {
		t.Errorf("Audio.SampleRate = %d, want 0 (native)", cfg.Audio.SampleRate)
	}
	if !cfg.Audio.CleanOnStart {
		t.Error("Audio.CleanOnStart should default to true")
	}
	if cfg.Transcribe.Backend != "groq" {
		t.Errorf("Transcribe.Backend = %q, want %q", cfg.Transcribe.Backend, "groq")
	}
	if cfg.Transcribe.Language != "pt" {
		t.Errorf("Transcribe.Language = %q, want %q", cfg.Transcribe.Language, "pt")
	}
	if cfg.Analyze.Model != "gpt-4o-mini" {
		t.Errorf("Analyze.Model = %q, want %q", cfg.Analyze.Model, "gpt-4o-mini")
	}
	if cfg.Retry.MaxAttempts != 1 {
		t.Errorf("Retry.MaxAttempts = %d, want 1", cfg.Retry.MaxAttempts)
	}
	if cfg.Discovery.PollInterval != 100*time.Millisecond {
		t.Errorf("Discovery.PollInterval = %v, want 100ms", cfg.Discovery.PollInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
audio:
  device: "USB Mic"
  sample_rate: 16000
  channels: 1
  chunk_seconds: 3
  output_dir: /tmp/chunks
  clean_on_start: false
transcribe:
  backend: command
  command: ["python3", "transcribe.py"]
  language: en
analyze:
  backend: none
  max_in_flight: 2
retry:
  max_attempts: 3
  base_delay: 250ms
discovery:
  poll_interval: 50ms
server:
  listen: ":8765"
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Audio.Device != "USB Mic" {
		t.Errorf("Audio.Device = %q, want %q", cfg.Audio.Device, "USB Mic")
	}
	if cfg.Audio.ChunkSeconds != 3 {
		t.Errorf("Audio.ChunkSeconds = %d, want 3", cfg.Audio.ChunkSeconds)
	}
	if cfg.Audio.CleanOnStart {
		t.Error("Audio.CleanOnStart = true, want false")
	}
	if cfg.Transcribe.Backend != "command" {
		t.Errorf("Transcribe.Backend = %q, want %q", cfg.Transcribe.Backend, "command")
	}
	if len(cfg.Transcribe.Command) != 2 || cfg.Transcribe.Command[1] != "transcribe.py" {
		t.Errorf("Transcribe.Command = %v, want [python3 transcribe.py]", cfg.Transcribe.Command)
	}
	if cfg.Transcribe.Model != "whisper-large-v3-turbo" {
		t.Errorf("Transcribe.Model = %q, default should survive partial config", cfg.Transcribe.Model)
	}
	if cfg.Analyze.MaxInFlight != 2 {
		t.Errorf("Analyze.MaxInFlight = %d, want 2", cfg.Analyze.MaxInFlight)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("Retry = %+v, want 3 attempts with 250ms base delay", cfg.Retry)
	}
	if cfg.Discovery.PollInterval != 50*time.Millisecond {
		t.Errorf("Discovery.PollInterval = %v, want 50ms", cfg.Discovery.PollInterval)
	}
	if cfg.Server.Listen != ":8765" {
		t.Errorf("Server.Listen = %q, want %q", cfg.Server.Listen, ":8765")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
audio:
  output_dir: ~/chunks
transcribe:
  model_path: ~/models/ggml.bin
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "chunks"); cfg.Audio.OutputDir != want {
		t.Errorf("Audio.OutputDir = %q, want %q", cfg.Audio.OutputDir, want)
	}
	if want := filepath.Join(home, "models/ggml.bin"); cfg.Transcribe.ModelPath != want {
		t.Errorf("Transcribe.ModelPath = %q, want %q", cfg.Transcribe.ModelPath, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvGroqAPIKey, "gsk_test")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")

	cfg := Default()
	cfg.Transcribe.APIKey = "from-file"
	cfg.ApplyEnv()

	if cfg.Transcribe.APIKey != "gsk_test" {
		t.Errorf("Transcribe.APIKey = %q, want %q", cfg.Transcribe.APIKey, "gsk_test")
	}
	if cfg.Analyze.APIKey != "sk-test" {
		t.Errorf("Analyze.APIKey = %q, want %q", cfg.Analyze.APIKey, "sk-test")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero chunk seconds",
			modify:  func(c *Config) { c.Audio.ChunkSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "empty output dir",
			modify:  func(c *Config) { c.Audio.OutputDir = "" },
			wantErr: true,
		},
		{
			name:    "unknown transcribe backend",
			modify:  func(c *Config) { c.Transcribe.Backend = "invalid" },
			wantErr: true,
		},
		{
			name:    "command backend without command",
			modify:  func(c *Config) { c.Transcribe.Backend = "command" },
			wantErr: true,
		},
		{
			name: "whisper backend at native rate",
			modify: func(c *Config) {
				c.Transcribe.Backend = "whisper"
			},
			wantErr: true,
		},
		{
			name: "whisper backend at 16kHz mono",
			modify: func(c *Config) {
				c.Transcribe.Backend = "whisper"
				c.Audio.SampleRate = 16000
				c.Audio.Channels = 1
			},
			wantErr: false,
		},
		{
			name:    "unknown analyze backend",
			modify:  func(c *Config) { c.Analyze.Backend = "invalid" },
			wantErr: true,
		},
		{
			name:    "zero max in flight",
			modify:  func(c *Config) { c.Analyze.MaxInFlight = 0 },
			wantErr: true,
		},
		{
			name:    "zero queue size",
			modify:  func(c *Config) { c.Analyze.QueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "zero analysis timeout",
			modify:  func(c *Config) { c.Analyze.Timeout = 0 },
			wantErr: true,
		},
		{
			name: "zero analysis timeout with analysis disabled",
			modify: func(c *Config) {
				c.Analyze.Backend = "none"
				c.Analyze.Timeout = 0
			},
			wantErr: false,
		},
		{
			name:    "zero retry attempts",
			modify:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			modify:  func(c *Config) { c.Discovery.PollInterval = 0 },
			wantErr: true,
		},
		{
			name: "hotkey enabled without keys",
			modify: func(c *Config) {
				c.Hotkey.Enabled = true
				c.Hotkey.Keys = nil
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "gostt-live", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# gostt-live") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Audio.ChunkSeconds != 5 {
		t.Errorf("written config Audio.ChunkSeconds = %d, want 5", cfg.Audio.ChunkSeconds)
	}
	if cfg.Transcribe.Backend != "groq" {
		t.Errorf("written config Transcribe.Backend = %q, want %q", cfg.Transcribe.Backend, "groq")
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "gostt-live")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existing := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existing, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existing) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
