package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-live/internal/audio"
	"github.com/chaz8081/gostt-live/internal/config"
	"github.com/chaz8081/gostt-live/internal/events"
	"github.com/chaz8081/gostt-live/internal/hotkey"
	"github.com/chaz8081/gostt-live/internal/metrics"
	"github.com/chaz8081/gostt-live/internal/realtime"
	"github.com/chaz8081/gostt-live/internal/server"
)

// drainTimeout bounds how long shutdown waits for in-flight analyses.
const drainTimeout = 30 * time.Second

func newRunCmd(opts *options) *cobra.Command {
	var listen, device string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Record and process a live session",
		Long:  "Starts recording immediately (or on the hotkey when enabled) and prints transcripts and analyses as they arrive. Ctrl+C stops the session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.prepare()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if device != "" {
				cfg.Audio.Device = device
			}
			return runLive(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "serve /events and /metrics on this address (e.g. 127.0.0.1:8765)")
	cmd.Flags().StringVar(&device, "device", "", "input device name (default: system default)")
	return cmd
}

func runLive(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := audio.NewMalgoDriver()
	if err != nil {
		return fmt.Errorf("%w\n\nEnsure microphone access is granted to this terminal", err)
	}
	defer driver.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	ctrl := realtime.New(cfg, driver, m)
	defer closeController(ctrl)

	if err := ctrl.InitTranscriber(&cfg.Transcribe); err != nil {
		return fmt.Errorf("initializing transcription: %w", err)
	}
	if err := ctrl.InitAnalyzer(&cfg.Analyze); err != nil {
		slog.Warn("[ANALYZE] analysis disabled", "error", err)
	}

	handlers := []events.Handler{events.NewTerminal(os.Stdout).Handle}
	if cfg.Server.Listen != "" {
		hub := server.NewHub(m)
		srv := server.New(cfg.Server.Listen, hub, prometheus.DefaultGatherer)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("[SERVER] shutdown", "error", err)
			}
		}()
		handlers = append(handlers, hub.Handle)
	}
	unsubscribe := ctrl.Subscribe(events.Tee(handlers...))
	defer unsubscribe()
	// Drain while the terminal and WebSocket clients are still subscribed.
	defer closeController(ctrl)

	printBanner(cfg, cfg.Server.Listen)

	if !cfg.Hotkey.Enabled {
		if _, err := ctrl.StartSession(context.Background()); err != nil {
			return err
		}
		fmt.Println("Recording. Press Ctrl+C to stop.")
		<-ctx.Done()
		return stopSession(ctrl)
	}

	listener := hotkey.NewListener(cfg.Hotkey.Keys)
	go listener.Start()
	fmt.Printf("Ready! Press %s to start or stop a session. Ctrl+C to quit.\n", strings.Join(cfg.Hotkey.Keys, "+"))

	for {
		select {
		case ev, ok := <-listener.Events():
			if !ok {
				slog.Info("hotkey listener stopped")
				return stopSession(ctrl)
			}
			switch ev.Type {
			case hotkey.EventStart:
				if _, err := ctrl.StartSession(context.Background()); err != nil {
					slog.Error("[SESSION] start failed", "error", err)
					listener.SetRecording(false)
				}
			case hotkey.EventStop:
				// In-flight analyses finish in the background.
				if err := stopSession(ctrl); err != nil {
					slog.Error("[SESSION] stop failed", "error", err)
				}
			}
		case <-ctx.Done():
			// gohook's C cleanup is left to process exit.
			return stopSession(ctrl)
		}
	}
}

// stopSession stops the active session, if any. Its remaining work is
// drained by closeController.
func stopSession(ctrl *realtime.Controller) error {
	err := ctrl.StopSession()
	if errors.Is(err, realtime.ErrNoSession) {
		return nil
	}
	if sess := ctrl.Session(); sess != nil {
		fmt.Printf("Session stopped (%d chunks so far).\n", sess.Processed())
	}
	return err
}

// closeController stops the controller, waiting at most drainTimeout for
// in-flight transcriptions and analyses.
func closeController(ctrl *realtime.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := ctrl.Close(ctx); err != nil {
		slog.Warn("[SESSION] shutdown", "error", err)
	}
}
