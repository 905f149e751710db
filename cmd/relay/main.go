package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/chatlink/internal/config"
	"github.com/rickgao/chatlink/internal/logging"
	"github.com/rickgao/chatlink/internal/relay"
	"github.com/rickgao/chatlink/internal/version"
)

var (
	flagConfig          string
	flagAddr            string
	flagShutdownTimeout time.Duration
	flagLogLevel        string
	flagLogFormat       string
)

var rootCmd = &cobra.Command{
	Use:          "relay",
	Short:        "Local chat relay: every frame goes to every connected peer",
	Args:         cobra.NoArgs,
	Version:      version.String(),
	SilenceUsage: true,
	RunE:         runRelay,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "path to config file")
	flags.StringVar(&flagAddr, "addr", config.DefaultRelayAddr, "listen address (overrides relay.addr)")
	flags.DurationVar(&flagShutdownTimeout, "shutdown-timeout", config.DefaultShutdownTimeout, "max wait for peers on shutdown (overrides relay.shutdown_timeout)")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flags.StringVar(&flagLogFormat, "log-format", "", "text or json (overrides log.format)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.LoadWithDefaults(flagConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Relay.Addr = flagAddr
	}
	if flags.Changed("shutdown-timeout") {
		cfg.Relay.ShutdownTimeout = flagShutdownTimeout
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = flagLogFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Logging())
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"addr", cfg.Relay.Addr,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := relay.NewServer(relay.Config{
		Addr:            cfg.Relay.Addr,
		ShutdownTimeout: cfg.Relay.ShutdownTimeout,
	}, logger)

	return srv.Run(ctx)
}
