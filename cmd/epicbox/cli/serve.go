package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sandboxrun/epicbox/internal/adminhttp"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin surface (/healthz, /metrics) — not the sandbox API",
	Run: func(cmd *cobra.Command, args []string) {
		runAdminServer()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "8080", "admin HTTP server port")
	RootCmd.AddCommand(serveCmd)
}

func runAdminServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	e := adminhttp.NewServer()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", servePort).Msg("admin server listening")
		serverErr <- e.Start(":" + servePort)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin server forced to shutdown")
		}
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("admin server startup failed")
	}
}
