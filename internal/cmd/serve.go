package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/piiguard/internal/config"
	"github.com/dativo-io/piiguard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (analyze, anonymize, deanonymize, entities)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", config.DefaultListenAddr, "HTTP listen address")
	_ = viper.BindPFlag(config.KeyListenAddr, serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	cfg.WarnIfInsecure()

	srv := server.NewServer(eng,
		server.WithCORSOrigins(cfg.CORSOrigins),
		// JSON escaping can grow the body well past the text itself.
		server.WithMaxBodyBytes(int64(cfg.MaxTextBytes)*2+4096),
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("ner_backend", cfg.NERBackend).
		Str("ner_policy", string(cfg.NERPolicy)).
		Strs("languages", eng.Registry().Languages()).
		Msg("piiguard_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
