// gamemanager - Discord chat-ops for supervisord-managed game servers
//
// Copyright (c) 2026 gamemanager contributors

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/gamemanager/cmd/gamemanager/internal"
	"github.com/sipeed/gamemanager/cmd/gamemanager/internal/bot"
	"github.com/sipeed/gamemanager/cmd/gamemanager/internal/onboard"
	"github.com/sipeed/gamemanager/cmd/gamemanager/internal/procs"
	"github.com/sipeed/gamemanager/cmd/gamemanager/internal/version"
)

func NewGameManagerCommand() *cobra.Command {
	short := fmt.Sprintf("%s gamemanager - Discord bot for supervisord game servers v%s\n\n",
		internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:          "gamemanager",
		Short:        short,
		Example:      "gamemanager bot\ngamemanager status\ngamemanager restart valheim-server",
		SilenceUsage: true,
	}

	internal.BindGlobalFlags(cmd)

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		bot.NewBotCommand(),
		procs.NewStatusCommand(),
		procs.NewRestartCommand(),
		procs.NewStartCommand(),
		procs.NewStopCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewGameManagerCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
