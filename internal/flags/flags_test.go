package flags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestFromContextDefaults(t *testing.T) {
	app := &cli.App{Flags: Flags, Action: func(c *cli.Context) error {
		cfg, err := FromContext(c)
		require.NoError(t, err)
		require.Equal(t, ListenAddrFlag.Value, cfg.HTTPAddr)
		require.Equal(t, KVTargetFlag.Value, cfg.KVTarget)
		require.Equal(t, WorkersFlag.Value, cfg.Workers)
		require.Equal(t, QueueFlag.Value, cfg.WorkerQueue)
		require.Equal(t, VerbosityFlag.Value, cfg.Verbosity)
		return nil
	}}
	require.NoError(t, app.Run([]string{"tracerpcd"}))
}

func TestFromContextFlagOverridesDefault(t *testing.T) {
	app := &cli.App{Flags: Flags, Action: func(c *cli.Context) error {
		cfg, err := FromContext(c)
		require.NoError(t, err)
		require.Equal(t, "0.0.0.0:9999", cfg.HTTPAddr)
		require.Equal(t, 16, cfg.Workers)
		return nil
	}}
	require.NoError(t, app.Run([]string{"tracerpcd", "--http.addr", "0.0.0.0:9999", "--workers", "16"}))
}

func TestFromContextConfigFileThenFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := "HTTPAddr = \"1.2.3.4:1111\"\nKVTarget = \"5.6.7.8:2222\"\nWorkers = 4\nWorkerQueue = 8\nCodeCacheMB = 32\nVerbosity = 2\n"
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))

	app := &cli.App{Flags: Flags, Action: func(c *cli.Context) error {
		cfg, err := FromContext(c)
		require.NoError(t, err)
		require.Equal(t, "1.2.3.4:1111", cfg.HTTPAddr)
		require.Equal(t, 4, cfg.Workers)
		// CLI flag still takes precedence over the config file.
		require.Equal(t, 99, cfg.WorkerQueue)
		return nil
	}}
	require.NoError(t, app.Run([]string{"tracerpcd", "--config", path, "--workers.queue", "99"}))
}

func TestFromContextConfigFileRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("NotAField = 1\n"), 0o644))

	app := &cli.App{Flags: Flags, Action: func(c *cli.Context) error {
		_, err := FromContext(c)
		require.Error(t, err)
		return nil
	}}
	require.NoError(t, app.Run([]string{"tracerpcd", "--config", path}))
}
