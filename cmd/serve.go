package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/conneroisu/otuserver/internal/config"
	"github.com/conneroisu/otuserver/internal/metrics"
	"github.com/conneroisu/otuserver/internal/server"
	"github.com/conneroisu/otuserver/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve files from the document root",
	Long: `Start the worker pool and serve files from the document root until
SIGINT or SIGTERM.

Only GET and HEAD are answered. Every response closes its connection.

Examples:
  otuserver serve                          # Serve ./doc_root on localhost:80
  otuserver serve -p 8080 -r ./public      # Custom port and root
  otuserver serve -w 16 -H 0.0.0.0         # 16 workers on all interfaces`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", config.DefaultHost, "Host to bind to")
	serveCmd.Flags().IntP("port", "p", config.DefaultPort, "Port to serve on")
	serveCmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Number of worker event loops")
	serveCmd.Flags().StringP("root", "r", config.DefaultRoot, "Document root directory")
	serveCmd.Flags().Duration("ready-timeout", config.DefaultReadyTimeout, "Readiness wait bound; shutdown is noticed once per interval")
	serveCmd.Flags().Duration("join-timeout", config.DefaultJoinTimeout, "How long to wait for each worker at shutdown")
	serveCmd.Flags().String("index", config.DefaultIndex, "File served for directory targets")
	serveCmd.Flags().String("templates", "", "Directory overriding the built-in error pages")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.workers", serveCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("server.root", serveCmd.Flags().Lookup("root"))
	_ = viper.BindPFlag("server.ready_timeout", serveCmd.Flags().Lookup("ready-timeout"))
	_ = viper.BindPFlag("server.join_timeout", serveCmd.Flags().Lookup("join-timeout"))
	_ = viper.BindPFlag("server.index", serveCmd.Flags().Lookup("index"))
	_ = viper.BindPFlag("templates.dir", serveCmd.Flags().Lookup("templates"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if cfg.Metrics.OTLPEndpoint != "" {
		shutdown, err := metrics.InstallOTLP(ctx, metrics.ExporterConfig{
			Endpoint:    cfg.Metrics.OTLPEndpoint,
			Interval:    cfg.Metrics.Interval,
			ServiceName: "otuserver",
			Version:     version.Get().Version,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn(context.Background(), err, "Metrics shutdown failed")
			}
		}()
	}

	pool, err := server.NewPool(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info(ctx, "Received signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := pool.Start(ctx); err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			return fmt.Errorf("port %d is already in use: %w", cfg.Server.Port, err)
		}
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
