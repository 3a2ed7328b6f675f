package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/danmuck/carlink/internal/capability"
	"github.com/danmuck/carlink/internal/config"
	"github.com/danmuck/carlink/internal/control"
	"github.com/danmuck/carlink/internal/device"
	"github.com/danmuck/carlink/internal/events"
	"github.com/danmuck/carlink/internal/history"
	"github.com/danmuck/carlink/internal/observability"
	"github.com/danmuck/carlink/internal/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runFlags struct {
	configPath string
	port       string
	baud       int
	selfID     string
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the serial link and serve the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Service.Link.Port = flags.port
			}
			if cmd.Flags().Changed("baud") {
				cfg.Service.Link.BaudRate = flags.baud
			}
			if cmd.Flags().Changed("self-id") {
				cfg.SelfID = flags.selfID
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDevice(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to TOML config")
	cmd.Flags().StringVarP(&flags.port, "port", "p", "", "Serial port path")
	cmd.Flags().IntVarP(&flags.baud, "baud", "b", 0, "Serial baud rate")
	cmd.Flags().StringVar(&flags.selfID, "self-id", "", "Local vehicle id (overrides the id file)")
	return cmd
}

func runDevice(ctx context.Context, cfg config.App) error {
	logger := observability.InitLogger("carlink")
	observability.RegisterMetrics()

	runner := tools.ExecRunner{}
	bus := events.NewBus(events.DefaultRecent)
	svc, err := device.NewService(cfg.Service, device.Deps{
		SelfID:      cfg.SelfIDProvider(),
		Capturer:    capability.CommandCapturer{Runner: runner, Argv: cfg.Audio.CaptureCommand, TempDir: cfg.Audio.TempDir},
		Transcriber: capability.CommandTranscriber{Runner: runner, Argv: cfg.Audio.TranscribeCommand},
		Speaker:     capability.CommandSpeaker{Runner: runner, Argv: cfg.Audio.SpeakCommand},
		Events:      bus,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	var hist control.HistorySource
	stopRecorder := func() {}
	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()
		hist = store

		// the recorder outlives ctx so shutdown outcomes are still stored
		sub, unsubscribe := bus.Subscribe()
		stopRecorder = unsubscribe
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			history.NewRecorder(store).Run(context.WithoutCancel(ctx), sub)
		}()
		logger.Info().Str("path", cfg.HistoryPath).Msg("history enabled")
	}

	if cfg.Control.ListenAddr != "" {
		srv := control.New("carlink", cfg.Control, svc, bus, hist)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("control api stopped")
				cancel()
			}
		}()
	}

	runErr := svc.Run(ctx)
	cancel()
	stopRecorder()
	wg.Wait()
	if runErr != nil {
		return fmt.Errorf("device: %w", runErr)
	}
	return nil
}
