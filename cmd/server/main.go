package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/matchbox-server/internal/adapters/http"
	"github.com/dkeye/matchbox-server/internal/adapters/rtc"
	wssignal "github.com/dkeye/matchbox-server/internal/adapters/signal"
	"github.com/dkeye/matchbox-server/internal/app"
	"github.com/dkeye/matchbox-server/internal/app/relay"
	"github.com/dkeye/matchbox-server/internal/app/topology"
	"github.com/dkeye/matchbox-server/internal/attestation"
	"github.com/dkeye/matchbox-server/internal/config"
	handlers "github.com/dkeye/matchbox-server/internal/transport/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("matchbox server failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "matchbox-server",
		Short:         "WebRTC signaling and matchmaking server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			setupLogger(cfg)
			return run(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	// JSON lines in release, human-friendly output otherwise.
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	state := app.NewServerState()
	policy := app.SimplePolicy{}
	hub := relay.NewHub(policy)
	topo := &topology.Topology{
		State:  state,
		Policy: policy,
		Sink:   hub,
	}

	ctl := wssignal.NewSignalWSController(topo, hub, cfg)
	h := &handlers.Handlers{
		State:    state,
		Attestor: attestation.NewAttestor(),
		ICE:      rtc.WebRTCConfig(cfg.ICEServers),
	}

	r := router.SetupRouter(ctx, cfg, ctl, h)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("matchbox server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		app.RunJanitor(ctx, state, cfg.JanitorPeriod, cfg.PendingTTL)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
