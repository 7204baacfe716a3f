package onboard

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/gamemanager/pkg/config"
)

func TestNewOnboardCommand(t *testing.T) {
	cmd := NewOnboardCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "onboard", cmd.Use)
	assert.Equal(t, "Write a default configuration file", cmd.Short)
	assert.Len(t, cmd.Aliases, 1)
	assert.True(t, cmd.HasAlias("o"))

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)
	assert.Nil(t, cmd.PersistentPreRun)
	assert.Nil(t, cmd.PersistentPostRun)

	assert.NotNil(t, cmd.Flags().Lookup("force"))
	assert.False(t, cmd.HasSubCommands())
}

func TestOnboardWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gm", "config.json")
	var out bytes.Buffer

	require.NoError(t, onboard(&out, path, false))
	assert.Contains(t, out.String(), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gamemanager", cfg.Commands.Group)
	assert.Equal(t, "/RPC2", cfg.Supervisor.APIPath)
}

func TestOnboardRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"discord":{"token":"keep-me"}}`), 0o600))

	err := onboard(&bytes.Buffer{}, path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "keep-me")

	require.NoError(t, onboard(&bytes.Buffer{}, path, true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "keep-me")
}

func TestOnboardCommandUsesConfigEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env-config.json")
	t.Setenv(config.EnvGameManagerConfig, path)

	cmd := NewOnboardCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
