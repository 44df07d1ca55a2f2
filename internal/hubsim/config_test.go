package hubsim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hubsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, cfg.Mode)
	assert.Equal(t, "-1", cfg.InitialActivity)
	assert.Equal(t, 2*time.Second, cfg.Timing.ActivityLatency)
	assert.Len(t, cfg.Activities, 3)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeYAML(t, `
listen: 127.0.0.1:9999
mode: drops
dropAfter: 3
activities:
  "100": Watch TV
initialActivity: "100"
timing:
  activityLatency: 150ms
  replyDelay: 10ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Listen)
	assert.Equal(t, ModeDrops, cfg.Mode)
	assert.Equal(t, 3, cfg.DropAfter)
	assert.Equal(t, map[string]string{"100": "Watch TV"}, cfg.Activities, "file activities replace the defaults")
	assert.Equal(t, 150*time.Millisecond, cfg.Timing.ActivityLatency)
	assert.Equal(t, 10*time.Millisecond, cfg.Timing.ReplyDelay)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Timing.HandshakeTimeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HUBSIM_MODE", "silent")
	t.Setenv("HUBSIM_LISTEN", ":7000")
	t.Setenv("HUBSIM_ACTIVITY_LATENCY", "1s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ModeSilent, cfg.Mode)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, time.Second, cfg.Timing.ActivityLatency)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "unknown key", body: "modes: normal\n"},
		{name: "bad mode", body: "mode: flaky\n"},
		{name: "unknown initial activity", body: "initialActivity: \"42\"\n"},
		{name: "drops without count", body: "mode: drops\ndropAfter: 0\n"},
		{name: "negative refusals", body: "refuseFirst: -1\n"},
		{name: "bad env latency", body: "mode: normal\n", env: map[string]string{"HUBSIM_ACTIVITY_LATENCY": "soon"}},
		{name: "bad env drop count", body: "mode: normal\n", env: map[string]string{"HUBSIM_DROP_AFTER": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeYAML(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "hubsim.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Activities, 3)
	assert.Equal(t, ModeNormal, cfg.Mode)
}
