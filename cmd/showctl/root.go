package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbernstein/lacylights-showsync/internal/rpc"
)

const defaultURL = "http://127.0.0.1:60715"

type commandContext struct {
	url     string
	json    bool
	timeout time.Duration
}

func (c *commandContext) client() *rpc.Client {
	return rpc.NewClient(strings.TrimSpace(c.url))
}

// requestContext bounds one request by the --timeout flag.
func (c *commandContext) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "showctl",
		Short:         "Control the LacyLights show sync daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	url := os.Getenv("SHOWCTL_URL")
	if url == "" {
		url = defaultURL
	}
	rootCmd.PersistentFlags().StringVar(&ctx.url, "url", url, "Daemon JSON-RPC base URL (env SHOWCTL_URL)")
	rootCmd.PersistentFlags().BoolVar(&ctx.json, "json", false, "Print raw JSON instead of formatted output")
	rootCmd.PersistentFlags().DurationVar(&ctx.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(newStatusCommand(ctx))
	for _, cmd := range newTransportCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newSeekCommand(ctx))
	rootCmd.AddCommand(newVolumeCommand(ctx))
	rootCmd.AddCommand(newSelectCommand(ctx))
	rootCmd.AddCommand(newRepeatCommand(ctx))
	rootCmd.AddCommand(newPlaylistCommand(ctx))
	rootCmd.AddCommand(newColorsCommand(ctx))
	rootCmd.AddCommand(newColorCommand(ctx))
	rootCmd.AddCommand(newTestPatternCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))

	return rootCmd
}
