package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		var extractor server.Extractor
		if env.Document != nil {
			extractor = env.Document
			zap.L().Info("document extraction enabled", zap.String("strategy", env.Document.Strategy()))
		}

		srv := server.New(cfg.Server, env.Search, extractor,
			server.WithMetrics(env.Metrics),
			server.WithMaxUploadMB(cfg.Document.MaxUploadMB),
		)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 5000, "HTTP server port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
