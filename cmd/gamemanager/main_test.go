package main

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/gamemanager/cmd/gamemanager/internal"
)

func TestNewGameManagerCommand(t *testing.T) {
	cmd := NewGameManagerCommand()

	require.NotNil(t, cmd)

	short := fmt.Sprintf("%s gamemanager - Discord bot for supervisord game servers v%s\n\n",
		internal.Logo, internal.GetVersion())

	assert.Equal(t, "gamemanager", cmd.Use)
	assert.Equal(t, short, cmd.Short)
	assert.True(t, cmd.SilenceUsage)

	assert.True(t, cmd.HasSubCommands())
	assert.True(t, cmd.HasAvailableSubCommands())

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))

	assert.Nil(t, cmd.Run)
	assert.Nil(t, cmd.RunE)

	allowedCommands := []string{
		"bot",
		"onboard",
		"restart",
		"start",
		"status",
		"stop",
		"version",
	}

	subcommands := cmd.Commands()
	assert.Len(t, subcommands, len(allowedCommands))

	for _, subcmd := range subcommands {
		found := slices.Contains(allowedCommands, subcmd.Name())
		assert.True(t, found, "unexpected subcommand %q", subcmd.Name())

		assert.False(t, subcmd.Hidden)
	}
}
