package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/chatlink/internal/config"
	"github.com/rickgao/chatlink/internal/connection"
	"github.com/rickgao/chatlink/internal/logging"
	"github.com/rickgao/chatlink/internal/version"
)

var (
	flagConfig        string
	flagURL           string
	flagDriver        string
	flagRetryInterval time.Duration
	flagMaxRetries    int
	flagLogLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "chatlink [url]",
	Short: "Keep a chat WebSocket open and pipe it to stdin/stdout",
	Long: `chatlink connects to a chat server over WebSocket and reconnects on a fixed
interval when the link drops. Each stdin line is sent as a text frame; every
inbound frame is written to stdout. Connection events go to stderr.`,
	Args:         cobra.MaximumNArgs(1),
	Version:      version.String(),
	SilenceUsage: true,
	RunE:         runChatlink,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "path to config file")
	flags.StringVar(&flagURL, "url", "", "chat server URL (overrides server.url)")
	flags.StringVar(&flagDriver, "driver", "", "transport driver: gorilla or coder (overrides transport.driver)")
	flags.DurationVar(&flagRetryInterval, "retry-interval", config.DefaultRetryInterval, "wait between reconnect attempts (overrides retry.interval)")
	flags.IntVar(&flagMaxRetries, "max-retries", config.DefaultMaxRetries, "reconnect attempts before giving up (overrides retry.max_retries)")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChatlink(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging())
	slog.SetDefault(logger)

	logger.Info("starting chatlink",
		"version", version.Version,
		"commit", version.Commit,
		"url", cfg.Server.URL,
		"driver", cfg.Transport.Driver,
	)

	// Cancelled on SIGINT/SIGTERM or when stdin ends
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := connection.NewDialer(cfg.ConnectionTransport(), logger)
	if err != nil {
		return err
	}

	policy := cfg.RetryPolicy()
	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.Retry = policy
	mgrCfg.Teardown = ctx

	mgr := connection.NewManager(mgrCfg, dialer, logger)
	defer mgr.Close()

	term := newTerminal(cmd.OutOrStdout(), cmd.ErrOrStderr(), policy.MaxRetries)
	mgr.Connect(cfg.Server.URL, connection.Options{
		Handlers: term.handlers(),
		Retry:    &policy,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return pump(gctx, cmd.InOrStdin(), mgr, term)
	})

	err = g.Wait()

	mgr.Close()
	stats := mgr.Stats()
	logger.Info("chatlink stopped",
		"state", stats.State,
		"sessions", stats.SessionsOpened,
		"reconnects", stats.ReconnectAttempts,
		"received", stats.MessagesReceived,
		"sent", stats.MessagesSent,
		"rejected", stats.SendsRejected,
	)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig reads --config (if any), applies flag overrides, and validates.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.LoadWithDefaults(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Server.URL = flagURL
	}
	if len(args) == 1 {
		cfg.Server.URL = args[0]
	}
	if flags.Changed("driver") {
		cfg.Transport.Driver = flagDriver
	}
	if flags.Changed("retry-interval") {
		d := flagRetryInterval
		cfg.Retry.Interval = &d
	}
	if flags.Changed("max-retries") {
		n := flagMaxRetries
		cfg.Retry.MaxRetries = &n
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}

	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
