package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, logging.LevelWarn, cfg.LogLevel)
	assert.Equal(t, 1, cfg.FetchWorkers)
	assert.True(t, cfg.EnableBatt)
	assert.Empty(t, cfg.Features)
}

func TestFlags(t *testing.T) {
	cfg, err := FromFlags([]string{
		"-interval", "250ms",
		"-json",
		"-log-level", "debug",
		"-fetch-workers", "3",
		"-feature", "tizen.org/feature/network.wifi=false",
		"-feature", "tizen.org/feature/screen.width=1080",
	})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.True(t, cfg.JSON)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 3, cfg.FetchWorkers)

	f := native.MobileProfile()
	cfg.ApplyFeatures(f)
	assert.False(t, f.Bool(native.FeatureWifi))
	v, _ := f.Lookup(native.FeatureScreenWidth)
	assert.Equal(t, 1080, v)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WRT_INTERVAL", "2")
	t.Setenv("WRT_BATT", "0")
	t.Setenv("WRT_LOG_LEVEL", "info")
	t.Setenv("WRT_FETCH_WORKERS", "2")
	t.Setenv("WRT_HTTP", "127.0.0.1:9470")
	cfg, err := FromFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.False(t, cfg.EnableBatt)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 2, cfg.FetchWorkers)
	assert.Equal(t, "127.0.0.1:9470", cfg.HTTPAddr)
}

func TestInvalidInput(t *testing.T) {
	_, err := FromFlags([]string{"-feature", "novalue"})
	assert.Error(t, err)
	_, err = FromFlags([]string{"-log-level", "loud"})
	assert.Error(t, err)
	_, err = FromFlags([]string{"-fetch-workers", "0"})
	assert.Error(t, err)
	_, err = FromFlags([]string{"-interval", "-1s"})
	assert.Error(t, err)
}
