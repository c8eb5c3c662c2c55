package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/routefs/internal/config"
	"github.com/conneroisu/routefs/internal/logging"
	"github.com/conneroisu/routefs/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the content directory as HTTP routes",
	Long: `Start the HTTP server over the content root. Requests resolve against
the directory tree: static files stream as-is, templates render per request,
and .js files handle requests through per-method functions.

The route index refreshes automatically while files change; disable the
watcher with --no-watch for immutable content.

Examples:
  routefs serve                          # Serve ./site on :8080
  routefs serve --root ./public -p 3000  # Another root and port
  routefs serve --listing                # Enable directory listings`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().StringP("root", "r", "./site", "Content root directory")
	serveCmd.Flags().Bool("listing", false, "Enable directory listings")
	serveCmd.Flags().Bool("no-watch", false, "Disable the filesystem watcher")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("content.root", serveCmd.Flags().Lookup("root"))
	_ = viper.BindPFlag("content.listing", serveCmd.Flags().Lookup("listing"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Watch.Enabled = false
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
