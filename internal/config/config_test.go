package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inDir runs the test from dir so the relative config/ lookup lands there.
func inDir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	inDir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "drop", cfg.Backpressure)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 10*time.Second, cfg.AdmissionWindow)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := "port: 9000\nbackpressure_policy: kick\nping_period: 30s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("HUDDLE_MODE", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "kick", cfg.Backpressure)
	assert.Equal(t, 30*time.Second, cfg.PingPeriod)
	assert.Equal(t, "debug", cfg.Mode)
}

func TestLoadClientWithBinding(t *testing.T) {
	inDir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "none")

	cfg, err := LoadClient(func(v *viper.Viper) error {
		v.Set("nickname", "carol")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Nickname)
	assert.Equal(t, "ws://localhost:8080/api/ws/signal", cfg.ServerURL)
	assert.EqualValues(t, 10_000_000, cfg.MaxUploadBytes)
	assert.Equal(t, 2*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.STUNURLs)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, Level("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, Level("warn"))
	assert.Equal(t, zerolog.InfoLevel, Level(""))
	assert.Equal(t, zerolog.InfoLevel, Level("loud"))
}
