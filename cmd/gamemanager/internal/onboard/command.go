package onboard

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/gamemanager/cmd/gamemanager/internal"
	"github.com/sipeed/gamemanager/pkg/config"
)

func NewOnboardCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:          "onboard",
		Aliases:      []string{"o"},
		Short:        "Write a default configuration file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onboard(cmd.OutOrStdout(), internal.GetConfigPath(), force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")

	return cmd
}

func onboard(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "%s Wrote default configuration to %s\n", internal.Logo, path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set discord.token and the supervisor section (or the GAMEMANAGER_* variables)")
	fmt.Fprintln(out, "  2. Check the connection: gamemanager status")
	fmt.Fprintln(out, "  3. Start the bot: gamemanager bot")
	return nil
}
