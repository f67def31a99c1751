package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/product-assistant/internal/app"
	"github.com/zulandar/product-assistant/internal/config"
	"github.com/zulandar/product-assistant/internal/logx"
	"github.com/zulandar/product-assistant/internal/session"
	"golang.org/x/term"
)

// loadConfig reads .env, the config file and PA_* overrides, then
// initialises logging.
func loadConfig(configPath string) (*config.Config, error) {
	if err := config.LoadDotenv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logx.Init(logx.Opts{Production: cfg.Environment.IsProduction(), Level: cfg.Log.Level})
	return cfg, nil
}

// startApp assembles the client and restores any persisted session. The
// caller must Close the returned App.
func startApp(ctx context.Context, configPath string) (*app.App, bool, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, false, err
	}
	tokens, err := session.OpenTokenStore(cfg.Session)
	if err != nil {
		return nil, false, fmt.Errorf("open token store: %w", err)
	}
	a, err := app.New(app.Options{Config: cfg, Tokens: tokens})
	if err != nil {
		tokens.Close()
		return nil, false, err
	}
	restored, err := a.Start(ctx)
	if err != nil {
		a.Close()
		return nil, false, err
	}
	return a, restored, nil
}

// prompter reads answers from the command's input. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in  io.Reader
	out io.Writer
	r   *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, out: cmd.OutOrStdout(), r: bufio.NewReader(in)}
}

// line prints prompt and returns the next trimmed input line. io.EOF is
// returned only when no input remains.
func (p *prompter) line(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}
	s, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) secret(prompt string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return p.line(prompt)
}

// credentials returns the email (prompting when empty) and the password.
func (p *prompter) credentials(email string) (string, string, error) {
	var err error
	if email == "" {
		if email, err = p.line("Email: "); err != nil {
			return "", "", fmt.Errorf("read email: %w", err)
		}
	}
	password, err := p.secret("Password: ")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}
