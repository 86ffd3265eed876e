package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chaz8081/gostt-live/internal/config"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. Environment
// overrides are applied last.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case path != "":
		c, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		defaultPath := config.DefaultConfigPath()
		if _, err := os.Stat(defaultPath); err == nil {
			c, err := config.Load(defaultPath)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
			}
			slog.Debug("config loaded", "path", defaultPath)
			cfg = c
		} else {
			slog.Debug("no config file found, using defaults")
			cfg = config.Default()
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// setupLogging installs a text slog handler on stderr at the given level.
func setupLogging(level string) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(level)})
	slog.SetDefault(slog.New(h))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, listen string) {
	device := cfg.Audio.Device
	if device == "" {
		device = "default"
	}
	fmt.Println("=== gostt-live ===")
	fmt.Printf("  Device:     %s\n", device)
	fmt.Printf("  Chunks:     %ds in %s\n", cfg.Audio.ChunkSeconds, cfg.Audio.OutputDir)
	fmt.Printf("  Transcribe: %s (%s, %s)\n", cfg.Transcribe.Backend, cfg.Transcribe.Model, cfg.Transcribe.Language)
	fmt.Printf("  Analyze:    %s (%s)\n", cfg.Analyze.Backend, cfg.Analyze.Model)
	if listen != "" {
		fmt.Printf("  Server:     http://%s (/events, /metrics)\n", listen)
	}
	if cfg.Hotkey.Enabled {
		fmt.Printf("  Hotkey:     %s\n", strings.Join(cfg.Hotkey.Keys, "+"))
	}
	fmt.Printf("  Log:        %s\n", cfg.LogLevel)
	fmt.Println("==================")
}
