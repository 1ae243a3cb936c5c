// Triagectl is the operator and kiosk client for a triaged server: it runs
// patient interviews from a terminal and manages the alert queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/triaged/internal/client"
)

const defaultServer = "http://localhost:8080"

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	server  string
	timeout time.Duration
}

// client builds an API client from the persistent flags.
func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.server)
}

// commandContext applies --timeout to the command context.
func (o *rootOptions) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	server := os.Getenv("TRIAGED_SERVER")
	if server == "" {
		server = defaultServer
	}

	cmd := &cobra.Command{
		Use:           "triagectl",
		Short:         "Run triage interviews and manage the alert queue of a triaged server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "triaged base URL (env TRIAGED_SERVER)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "overall deadline for the command (0 = none)")

	cmd.AddCommand(newAlertsCmd(opts), newInterviewCmd(opts))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
