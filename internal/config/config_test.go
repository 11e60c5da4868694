package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_UsesHomeBasedBaseDir(t *testing.T) {
	cfg := Default()
	require.NotEmpty(t, cfg.BaseDir)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "jqs"), cfg.BaseDir)
	require.Equal(t, 100, cfg.HistoryKeep)
	require.Equal(t, 5, cfg.PollIntervalSeconds)
}

func TestLoadFile_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(Default(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile_MergesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jqs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_dir: /var/jqs\ncores_total: 8\n"), 0o644))

	cfg, err := LoadFile(Default(), path)
	require.NoError(t, err)
	require.Equal(t, "/var/jqs", cfg.BaseDir)
	require.Equal(t, 8, cfg.CoresTotal)
	require.Equal(t, 100, cfg.HistoryKeep)
}

func TestApplyEnv_OverridesLayeredValues(t *testing.T) {
	t.Setenv("JQS_BASE_DIR", "/env/jqs")
	t.Setenv("JQS_CORES_TOTAL", "32")
	t.Setenv("JQS_NO_LOGS", "true")

	cfg, err := ApplyEnv(Default())
	require.NoError(t, err)
	require.Equal(t, "/env/jqs", cfg.BaseDir)
	require.Equal(t, 32, cfg.CoresTotal)
	require.True(t, cfg.NoLogs)
}

func TestApplyEnv_InvalidIntReturnsError(t *testing.T) {
	t.Setenv("JQS_CORES_TOTAL", "not-a-number")
	_, err := ApplyEnv(Default())
	require.Error(t, err)
}

func TestApplyFlags_OnlyOverridesSetFields(t *testing.T) {
	cores := 4
	cfg := ApplyFlags(Default(), Overrides{CoresTotal: &cores})
	require.Equal(t, 4, cfg.CoresTotal)
	require.Equal(t, Default().BaseDir, cfg.BaseDir)
}

func TestLoad_FileThenEnvThenFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jqs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cores_total: 8\n"), 0o644))
	t.Setenv("JQS_CORES_TOTAL", "16")

	flagCores := 64
	cfg, err := Load(path, Overrides{CoresTotal: &flagCores})
	require.NoError(t, err)
	require.Equal(t, 64, cfg.CoresTotal)

	cfg, err = Load(path, Overrides{})
	require.NoError(t, err)
	require.Equal(t, 16, cfg.CoresTotal)
}
