package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25.0, cfg.Stream.DefaultFPS)
	assert.Equal(t, 60.0, cfg.Stream.MaxFPS)
	assert.True(t, cfg.Supports("highd"))
	assert.False(t, cfg.Supports("inD"))
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	want := Default()
	if diff := cmp.Diff(&want, cfg, cmpopts.IgnoreFields(Config{}, "File")); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, cfg.File)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "replay.toml", `
[server]
listen = "0.0.0.0:9000"

[stream]
default_fps = 10.0

[sessions]
ttl = "5m"
max_sessions = 3
`)
	t.Setenv("TRAFFICREPLAY_STREAM_DEFAULT_FPS", "12.5")
	t.Setenv("TRAFFICREPLAY_WS_PING_INTERVAL", "15s")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, 12.5, cfg.Stream.DefaultFPS, "environment overrides the file")
	assert.Equal(t, 5*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, 3, cfg.Sessions.MaxSessions)
	assert.Equal(t, 15*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, 60.0, cfg.Stream.MaxFPS, "untouched keys keep defaults")
	assert.Equal(t, path, cfg.File)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"wrong extension", "config.json", `{}`},
		{"malformed", "bad.toml", `[server`},
		{"max below default fps", "fps.toml", "[stream]\ndefault_fps = 30.0\nmax_fps = 20.0\n"},
		{"bad listen", "listen.toml", "[server]\nlisten = \"nonsense\"\n"},
		{"no datasets", "ds.toml", "[data]\nsupported_datasets = []\n"},
		{"zero janitor", "jan.toml", "[sessions]\njanitor_interval = \"0s\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(New(), writeFile(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", DefaultFileName)
	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Frames per second when a client sends none")
	assert.Contains(t, string(data), "30m0s")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	want := Default()
	if diff := cmp.Diff(&want, cfg, cmpopts.IgnoreFields(Config{}, "File")); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, WriteDefault(path, false), "existing file is kept")
	assert.NoError(t, WriteDefault(path, true))
}
