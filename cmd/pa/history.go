package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/product-assistant/internal/render"
)

var errNotLoggedIn = errors.New("not logged in; run 'pa login' first")

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous conversations",
		Long:  "Lists your conversations, most recent first. Resume one with 'pa chat <id>'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to pa config file")
	return cmd
}

func runHistory(cmd *cobra.Command, configPath string) error {
	ctx := context.Background()
	a, restored, err := startApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if !restored {
		return errNotLoggedIn
	}

	s := a.History.Mount(ctx)
	if !a.Session.IsAuthenticated() {
		return errNotLoggedIn
	}
	if s.Error != "" {
		return fmt.Errorf("%s", s.Error)
	}
	render.Summaries(cmd.OutOrStdout(), s.Items)
	return nil
}
