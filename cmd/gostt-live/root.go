package main

import (
	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-live/internal/config"
)

// options holds flags shared by every command.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "gostt-live",
		Short:         "Live call transcription and coaching",
		Long:          "Records the microphone in fixed-length chunks, transcribes each chunk and runs an LLM analysis (objections, important points, sentiment, suggestions) on every transcript.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = version + " (" + commit + ")"
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: "+config.DefaultConfigPath()+")")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newDevicesCmd(),
		newPathCmd(opts),
		newTranscribeCmd(opts),
		newAnalyzeCmd(opts),
		newModelCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// prepare loads and validates the config and sets up logging.
func (o *options) prepare() (*config.Config, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}
