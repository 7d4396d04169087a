package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/edusync/edusync/internal/accounts"
	"github.com/edusync/edusync/internal/apiclient"
	"github.com/edusync/edusync/internal/config"
	"github.com/edusync/edusync/internal/diag"
	"github.com/edusync/edusync/internal/metrics"
	"github.com/edusync/edusync/internal/session"
	"github.com/edusync/edusync/internal/tokenstore"
)

// app is the dependency container for one CLI invocation. It is built once
// and handed to each command; nothing is reached through globals.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tokens   tokenstore.Store
	client   *apiclient.Client
	session  *session.Manager
	accounts *accounts.Controller

	in    io.Reader
	out   io.Writer
	lines *bufio.Reader

	closeTokens func() error
}

func newApp(cmd *cobra.Command, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	tokens, closeTokens, err := tokenstore.Open(cfg.TokenStore)
	if err != nil {
		return nil, err
	}
	return assemble(cmd, cfg, logger, tokens, closeTokens), nil
}

// assemble wires the client stack around an already opened token store.
func assemble(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, tokens tokenstore.Store, closeTokens func() error) *app {
	m := metrics.New()
	sink := diag.NewLogSink(logger)

	client := apiclient.New(cfg.API.BaseURL, tokens, cfg.API.Timeout)
	client.SetMetrics(m)

	mgr := session.NewManager(client, tokens, sink)
	mgr.SetMetrics(m)
	mgr.SetLogger(logger)
	client.OnUnauthorized(mgr.Invalidate)

	ctrl := accounts.NewController(client, sink)
	ctrl.SetMetrics(m)
	ctrl.SetLogger(logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		tokens:      tokens,
		client:      client,
		session:     mgr,
		accounts:    ctrl,
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		closeTokens: closeTokens,
	}
}

// Close logs the metrics summary and releases the token store.
func (a *app) Close() {
	if s, err := a.metrics.Summary(); err == nil {
		a.logger.Debug("metrics summary",
			"api_requests", s.API.TotalRequests,
			"api_error_rate", s.API.ErrorRate,
			"transport_errors", s.API.TransportErrors,
			"session_transitions", s.Session.Transitions,
			"auth_failures", s.Session.AuthFailures,
			"account_ops_ok", s.Accounts.Succeeded,
			"account_ops_failed", s.Accounts.Failed,
		)
	}
	if a.closeTokens != nil {
		if err := a.closeTokens(); err != nil {
			a.logger.Warn("closing token store", "error", err)
		}
	}
}

// start resolves the stored session before a command runs.
func (a *app) start(ctx context.Context) session.Session {
	return a.session.Start(ctx)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// readPasswordFunc reads a line without echo. Replaced in tests.
var readPasswordFunc = term.ReadPassword

// promptLine prints label and reads one line from the command input.
func (a *app) promptLine(label string) (string, error) {
	if a.lines == nil {
		a.lines = bufio.NewReader(a.in)
	}
	fmt.Fprint(a.out, label)
	line, err := a.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword prints label and reads a secret from the terminal.
func (a *app) promptPassword(label string) (string, error) {
	fmt.Fprint(a.out, label)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// confirm asks a yes/no question; anything but y or yes is no.
func (a *app) confirm(question string) (bool, error) {
	answer, err := a.promptLine(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
