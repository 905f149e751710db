package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/chatlink/internal/api"
	"github.com/rickgao/chatlink/internal/logging"
)

var (
	healthURL     string
	healthTimeout time.Duration
	healthJSON    bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check if a relay is healthy and reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(healthURL,
			api.WithTimeout(healthTimeout),
			api.WithRetries(2, 200*time.Millisecond),
			api.WithLogger(logging.Nop()),
		)

		h, err := client.GetHealth(cmd.Context())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "unhealthy: %v\n", err)
			return errors.New("relay is not healthy")
		}

		if healthJSON {
			data, _ := json.MarshalIndent(h, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (peers=%d frames=%d version=%s)\n", h.Status, h.Peers, h.Frames, h.Version)
		}

		if h.Status != api.StatusOK {
			return fmt.Errorf("relay status %q", h.Status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", "http://localhost:8090", "relay base URL")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "request timeout")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the health response as JSON")
	rootCmd.AddCommand(healthCmd)
}
