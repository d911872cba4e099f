// Command signer-node serves one participant of the threshold group over JSON-RPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/taurusgroup/frost-bridge/internal/config"
	"github.com/taurusgroup/frost-bridge/internal/log"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
	"github.com/taurusgroup/frost-bridge/pkg/signerclient"
	"github.com/taurusgroup/frost-bridge/pkg/storage/leveldb"
)

// RPCPath is where the signer service is mounted.
const RPCPath = "/rpc"

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "signer-node",
		Short:        "Run a FROST signer node",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadSigner(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "signer.yaml", "path to the YAML configuration")
	return cmd
}

func run(ctx context.Context, cfg *config.Signer) error {
	logger, err := log.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}
	store, err := leveldb.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := signer.New(cfg.ID, store, signer.WithLogger(logger))
	if err != nil {
		return err
	}
	rpc, err := signerclient.NewHandler(s, logger)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(RPCPath, rpc)
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go collectGarbage(ctx, s, cfg, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info().Stringer("participant", cfg.ID).Str("listen", cfg.Listen).Msg("serving")
		errc <- server.ListenAndServe()
	}()
	select {
	case err = <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}

func collectGarbage(ctx context.Context, s *signer.Signer, cfg *config.Signer, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CollectGarbage(ctx, cfg.SessionTTL); err != nil {
				logger.Warn().Err(err).Msg("garbage collection failed")
			}
		}
	}
}
