package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homehub/hubctl/internal/command"
	"github.com/homehub/hubctl/internal/config"
	"github.com/homehub/hubctl/internal/hubclient"
	"github.com/homehub/hubctl/internal/transport"
)

const catalogYAML = `
activities:
  watch_tv: {id: "100", name: "Watch TV"}
  music: {id: "200", name: "Listen to Music"}
devices:
  samsung: {id: "1", name: "Samsung TV", commands: [PowerOn, Menu]}
  onkyo: {id: "2", name: "Onkyo Receiver"}
audioCommands:
  vol+: VolumeUp
audioDevice: onkyo
`

func loadCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hubctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return &cfg.Catalog
}

func TestWriteCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCatalog(&buf, loadCatalog(t)))
	out := buf.String()

	for _, want := range []string{"ACTIVITIES", "watch_tv", "Listen to Music", "ALIASES", "AUDIO", "audio-on", "vol+", "VolumeUp", "DEVICES", "PowerOn Menu"} {
		assert.Contains(t, out, want)
	}
	// tv resolves through the default aliases; shield does not.
	assert.Regexp(t, `(?m)^\s+tv\s+Watch TV\s+100$`, out)
	assert.NotContains(t, out, "shield")
	assert.Less(t, strings.Index(out, "ACTIVITIES"), strings.Index(out, "DEVICES"))
}

func TestActivityLabel(t *testing.T) {
	c := loadCatalog(t)
	assert.Equal(t, "OFF", activityLabel(c, hubclient.PowerOffActivity))
	assert.Equal(t, "Watch TV", activityLabel(c, "100"))
	assert.Equal(t, "Activity 999", activityLabel(c, "999"))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"configuration", fmt.Errorf("wrap: %w", command.ErrConfiguration), "is not configured"},
		{"cancelled", context.Canceled, "interrupted"},
		{"network", &transport.Error{Op: "connect", Err: errors.New("refused")}, "cannot reach the hub"},
		{"timeout", fmt.Errorf("status: %w", hubclient.ErrTimeout), "timed out"},
		{"general", &hubclient.HubError{Cmd: "x", Code: 500}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := describe("tv", tt.err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRootRequiresHub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	_, err := newApp(GlobalFlags{ConfigPath: path}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hub host is not configured")
}
