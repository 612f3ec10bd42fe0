package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GITHUB_TOKEN", "")
	cfg = nil
	return home
}

func newTestCommand(flags map[string]string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	cmd.Flags().StringP("workspace", "w", "", "workspace directory")
	cmd.Flags().String("format", "table", "output format")
	cmd.Flags().String("dir", "", "target directory")
	for name, value := range flags {
		_ = cmd.Flags().Set(name, value)
	}

	var out bytes.Buffer
	cmd.SetOut(&out)
	return cmd, &out
}

func TestHistoryShowCmd(t *testing.T) {
	setupTestHome(t)

	t.Run("table", func(t *testing.T) {
		cmd, out := newTestCommand(nil)
		require.NoError(t, historyShowCmd.RunE(cmd, nil))
		assert.Contains(t, out.String(), "assistant")
	})

	t.Run("json", func(t *testing.T) {
		cmd, out := newTestCommand(map[string]string{"format": "json"})
		require.NoError(t, historyShowCmd.RunE(cmd, nil))
		assert.Contains(t, out.String(), `"messages"`)
		assert.Contains(t, out.String(), "Cogniview")
	})

	t.Run("invalid format", func(t *testing.T) {
		cmd, _ := newTestCommand(map[string]string{"format": "xml"})
		assert.Error(t, historyShowCmd.RunE(cmd, nil))
	})
}

func TestHistoryExportCmd(t *testing.T) {
	setupTestHome(t)
	dir := filepath.Join(t.TempDir(), "exports")

	t.Run("json", func(t *testing.T) {
		cmd, out := newTestCommand(map[string]string{"format": "json", "dir": dir})
		require.NoError(t, historyExportCmd.RunE(cmd, nil))
		assert.Contains(t, out.String(), "Conversation exported to")

		matches, err := filepath.Glob(filepath.Join(dir, "kiki-chat-*.json"))
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("yaml", func(t *testing.T) {
		cmd, _ := newTestCommand(map[string]string{"format": "yaml", "dir": dir})
		require.NoError(t, historyExportCmd.RunE(cmd, nil))

		matches, err := filepath.Glob(filepath.Join(dir, "kiki-chat-*.yaml"))
		require.NoError(t, err)
		require.Len(t, matches, 1)

		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), "messages:")
	})

	t.Run("table is rejected", func(t *testing.T) {
		cmd, _ := newTestCommand(map[string]string{"format": "table", "dir": dir})
		assert.Error(t, historyExportCmd.RunE(cmd, nil))
	})
}

func TestHistoryClearCmd(t *testing.T) {
	setupTestHome(t)

	cmd, out := newTestCommand(nil)
	require.NoError(t, historyClearCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Conversation cleared.")
}

func TestActionLsCmd(t *testing.T) {
	setupTestHome(t)

	cmd, out := newTestCommand(map[string]string{"format": "json"})
	require.NoError(t, actionLsCmd.RunE(cmd, nil))

	for _, name := range []string{"calculate", "getRepository", "getTime", "getWeather", "manageTodo"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestActionRunCmd(t *testing.T) {
	setupTestHome(t)

	t.Run("calculate", func(t *testing.T) {
		cmd, out := newTestCommand(nil)
		require.NoError(t, actionRunCmd.RunE(cmd, []string{"calc", `{"expression":"6*7"}`}))
		assert.Contains(t, out.String(), `"result"`)
		assert.Contains(t, out.String(), "42")
	})

	t.Run("todo round trip", func(t *testing.T) {
		cmd, _ := newTestCommand(nil)
		require.NoError(t, actionRunCmd.RunE(cmd, []string{"todo", `{"operation":"add","title":"practice system design"}`}))

		cmd, out := newTestCommand(nil)
		require.NoError(t, actionRunCmd.RunE(cmd, []string{"todo", `{"operation":"list"}`}))
		assert.Contains(t, out.String(), "practice system design")
	})

	t.Run("bad params", func(t *testing.T) {
		cmd, _ := newTestCommand(nil)
		assert.Error(t, actionRunCmd.RunE(cmd, []string{"calculate", `[1,2]`}))
	})

	t.Run("unknown action", func(t *testing.T) {
		cmd, _ := newTestCommand(nil)
		assert.Error(t, actionRunCmd.RunE(cmd, []string{"teleport"}))
	})
}

func TestNewGatewayServer(t *testing.T) {
	setupTestHome(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cmd, _ := newTestCommand(nil)
	loadedCfg, err := loadConfigForCommand(cmd)
	require.NoError(t, err)

	server, err := newGatewayServer(loadedCfg)
	require.NoError(t, err)
	assert.NotNil(t, server.Handler())
}

func TestConfigInitAndView(t *testing.T) {
	home := setupTestHome(t)
	t.Setenv("GITHUB_TOKEN", "ghp_secret_token")

	cmd, out := newTestCommand(nil)
	require.NoError(t, configInitCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Initialized config")
	assert.FileExists(t, filepath.Join(home, ".kiki", "config.yaml"))

	cmd, out = newTestCommand(nil)
	require.NoError(t, configInitCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Config already exists")

	cmd, out = newTestCommand(nil)
	require.NoError(t, configViewCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "gemini-2.0-flash")
	assert.NotContains(t, out.String(), "ghp_secret_token")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abcd"))
	assert.Equal(t, "ab**ef", maskSecret("abcdef"))
}
