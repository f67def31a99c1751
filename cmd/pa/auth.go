package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/product-assistant/internal/errx"
)

func newLoginCmd() *cobra.Command {
	var (
		configPath string
		email      string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Long:  "Exchanges your email and password for a session token. The password is read without echo.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath, email)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to pa config file")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email (prompted when empty)")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath, email string) error {
	ctx := context.Background()
	a, _, err := startApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	email, password, err := newPrompter(cmd).credentials(email)
	if err != nil {
		return err
	}
	if err := a.Session.Login(ctx, email, password); err != nil {
		if errx.IsAuth(err) {
			return fmt.Errorf("login failed: incorrect email or password")
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", a.Session.CurrentUser().Email)
	return nil
}

func newSignupCmd() *cobra.Command {
	var (
		configPath string
		email      string
	)

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignup(cmd, configPath, email)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to pa config file")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email (prompted when empty)")
	return cmd
}

func runSignup(cmd *cobra.Command, configPath, email string) error {
	ctx := context.Background()
	a, _, err := startApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	email, password, err := newPrompter(cmd).credentials(email)
	if err != nil {
		return err
	}
	if err := a.Session.Register(ctx, email, password); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Account created. Logged in as %s\n", a.Session.CurrentUser().Email)
	return nil
}

func newLogoutCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to pa config file")
	return cmd
}

func runLogout(cmd *cobra.Command, configPath string) error {
	a, _, err := startApp(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Logout()
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func newWhoamiCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to pa config file")
	return cmd
}

func runWhoami(cmd *cobra.Command, configPath string) error {
	a, restored, err := startApp(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if !restored {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}
	u := a.Session.CurrentUser()
	fmt.Fprintf(out, "%s (id %s)\n", u.Email, u.ID)
	return nil
}
