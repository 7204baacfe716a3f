// Package procs holds the one-shot CLI commands that talk to the process
// supervisor directly, without going through Discord.
package procs

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sipeed/gamemanager/cmd/gamemanager/internal"
	"github.com/sipeed/gamemanager/pkg/gamemanager"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

type processClient interface {
	ListProcesses(ctx context.Context) ([]supervisor.ProcessInfo, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
}

// newClient is swapped out in tests.
var newClient = func(debug bool) (processClient, func(), error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := internal.NewLogger(cfg, internal.Stderr, false, debug)
	if err != nil {
		return nil, nil, err
	}
	m, err := internal.NewMonitor(cfg, log)
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	return m, func() { log.Close() }, nil
}

func withClient(debug bool, fn func(processClient) error) error {
	client, closeFn, err := newClient(debug)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(client)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func NewStatusCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:          "status",
		Aliases:      []string{"view"},
		Short:        "Show the state of every supervised process",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(debug, func(c processClient) error {
				return runStatus(commandContext(cmd), cmd.OutOrStdout(), c)
			})
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, c processClient) error {
	procs, err := c.ListProcesses(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, gamemanager.FormatStatus(procs))
	return err
}

func NewRestartCommand() *cobra.Command {
	return newControlCommand("restart", "Stop then start a supervised process",
		"Process %s has been restarted successfully.\n",
		func(c processClient) func(context.Context, string) error { return c.Restart })
}

func NewStartCommand() *cobra.Command {
	return newControlCommand("start", "Start a supervised process",
		"Process %s started.\n",
		func(c processClient) func(context.Context, string) error { return c.Start })
}

func NewStopCommand() *cobra.Command {
	return newControlCommand("stop", "Stop a supervised process",
		"Process %s stopped.\n",
		func(c processClient) func(context.Context, string) error { return c.Stop })
}

func newControlCommand(
	use, short, done string,
	action func(processClient) func(context.Context, string) error,
) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:          use + " <process name>",
		Short:        short,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withClient(debug, func(c processClient) error {
				if err := action(c)(commandContext(cmd), name); err != nil {
					return fmt.Errorf("%s %s: %w", use, name, err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), done, name)
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}
