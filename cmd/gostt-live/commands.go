package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-live/internal/audio"
	"github.com/chaz8081/gostt-live/internal/config"
	"github.com/chaz8081/gostt-live/internal/models"
	"github.com/chaz8081/gostt-live/internal/realtime"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := audio.NewMalgoDriver()
			if err != nil {
				return err
			}
			defer driver.Close()

			devices, err := driver.Devices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				return audio.ErrNoDevice
			}
			for _, d := range devices {
				marker := " "
				if d.IsDefault {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, d.Name)
			}
			return nil
		},
	}
}

func newPathCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the directory chunks are recorded to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Audio.OutputDir)
			return nil
		},
	}
}

func newTranscribeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a single audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.prepare()
			if err != nil {
				return err
			}
			ctrl := realtime.New(cfg, nil, nil)
			defer ctrl.Close(context.Background())
			if err := ctrl.InitTranscriber(&cfg.Transcribe); err != nil {
				return err
			}

			res, err := ctrl.Transcribe(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <text>",
		Short: "Analyze a transcript and print the result as JSON",
		Long:  "Analyzes the given text, or standard input when the text is \"-\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.prepare()
			if err != nil {
				return err
			}
			text := args[0]
			if text == "-" {
				data, err := readAll(cmd)
				if err != nil {
					return err
				}
				text = data
			}

			ctrl := realtime.New(cfg, nil, nil)
			defer ctrl.Close(context.Background())
			if err := ctrl.InitAnalyzer(&cfg.Analyze); err != nil {
				return err
			}

			res, err := ctrl.Analyze(commandContext(cmd), text)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model [name]",
		Short: "Download a whisper model for the local backend",
		Long:  "Downloads a ggml whisper model (" + strings.Join(models.Known, ", ") + ") to " + config.DefaultModelsDir() + ".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := models.DefaultModel
			if len(args) == 1 {
				name = args[0]
			}
			path, err := models.Download(commandContext(cmd), name, config.DefaultModelsDir(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set transcribe.model_path to %s to use it.\n", path)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gostt-live %s, commit %s\n", version, commit)
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func readAll(cmd *cobra.Command) (string, error) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading standard input: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no text on standard input")
	}
	return string(data), nil
}
