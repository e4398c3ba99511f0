package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rasmus-Riis/OfficeRecon/internal/webserver"
	"github.com/Rasmus-Riis/OfficeRecon/pkg/auth"
)

var serveOpts struct {
	scanFlags
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored records over the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveOpts.register(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveOpts.config(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c, err := openCollaborators(ctx)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())
	if c.db == nil {
		logger.Warn("DATABASE_TYPE is none; record endpoints will answer 503")
	}

	scanner, err := newScanner(cfg, c)
	if err != nil {
		return err
	}

	authConfig, err := auth.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to initialize auth config: %w", err)
	}
	logger.Infof("Auth type: %v", authConfig.AuthType)

	authHandler := auth.NewHandler(authConfig, c.db, logger)

	webServerConfig, err := webserver.NewWebserverConfig()
	if err != nil {
		return fmt.Errorf("failed to load webserver configuration: %w", err)
	}
	if len(webServerConfig.ScanAllowedRoots) == 0 {
		logger.Info("SCAN_ALLOWED_ROOTS not set. POST /api/scans is disabled.")
	}

	ws := webserver.NewWebServer(scanner, c.db, webServerConfig, authConfig, authHandler, logger)
	server, err := webserver.StartWebServer(ctx, ws)
	if err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Infof("Received signal: %s. Initiating shutdown...", sig)
	case <-ctx.Done():
	}

	// Running scan jobs see the cancellation between files.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to gracefully shutdown the server: %w", err)
	}
	ws.Wait()

	logger.Info("Shutdown complete. Exiting.")
	return nil
}
