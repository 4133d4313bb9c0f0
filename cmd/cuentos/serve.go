package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/config"
	"github.com/cuentosapp/cuentos-server/internal/home"
	"github.com/cuentosapp/cuentos-server/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cuentos server",
	Long: `Start the cuentos HTTP server.

This starts both the HTTP API server and the DefraDB container.
When the server shuts down (via Ctrl+C or SIGTERM), DefraDB is also stopped.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes DefraDB status)
  - /api/*  - Manuscript, parsing, chapter, and narration endpoints

Examples:
  cuentos serve                    # Start on default port 8080
  cuentos serve --port 3000        # Start on custom port
  cuentos serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		appCfg := cm.Get()
		host := appCfg.Server.Host
		port := appCfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
