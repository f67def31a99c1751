package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/product-assistant/internal/devserver"
)

func newDevServerCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local product-assistant backend",
		Long:  "Serves the auth and chatbot endpoints from a seeded sqlite catalog, for trying pa without the real backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevServer(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to pa config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runDevServer(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.DevServer.Port
	}

	db, err := devserver.OpenDB(cfg.DevServer.DB)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return devserver.Start(ctx, devserver.StartOpts{
		DB:   db,
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}
