package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/config"
	"github.com/crossref-matcher/internal/web"
)

func createServeCmd() *cobra.Command {
	var (
		host    string
		port    int
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			bp, closeFn, err := newProcessor(cmd.Context(), !noStore)
			if err != nil {
				return err
			}
			defer closeFn()

			web.Version = version
			webConfig := web.FromAppConfig(cfg)
			logger.Info("features",
				zap.Bool("export", webConfig.Features.ExportEnabled),
				zap.Bool("review", webConfig.Features.ReviewEnabled),
				zap.Bool("auth", webConfig.Auth.APIKey != ""),
				zap.Bool("audit", !noStore))

			return web.NewServer(webConfig, bp, logger).Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default: configured)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default: configured)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Run without the audit database")
	return cmd
}

func createConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save matching settings",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Threshold: %.2f\n", cfg.Threshold)
			fmt.Fprintf(w, "Matching:  %s\n", cfg.Matching)
			fmt.Fprintf(w, "Database:  %s\n", cfg.Database.Driver)
			fmt.Fprintf(w, "Server:    %s\n", cfg.Server.Addr())
			fmt.Fprintf(w, "Logging:   %s\n", cfg.Logging.Level)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "save [profile-file]",
		Short: "Write the effective matching settings as a reusable profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveMatching(args[0], cfg.Matching); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile written to %s\n", args[0])
			return nil
		},
	})

	return configCmd
}
