package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
hub:
  host: 192.168.1.20
  remoteId: "1234567"
activities:
  TV: {id: "12345678", name: "Watch TV"}
  music: {id: "87654321", name: "Listen to Music"}
  off: {id: "-1", name: "PowerOff"}
devices:
  samsung: {id: "11111111", name: "Samsung TV", commands: [PowerOn, PowerOff, VolumeUp]}
  onkyo: {id: "22222222", name: "Onkyo Receiver"}
audioCommands:
  vol+: VolumeUp
  vol-: VolumeDown
  mute: Mute
audioDevice: onkyo
timing:
  activityTimeout: 5s
  pressReleaseGap: 80ms
logging:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hubctl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Hub.Port != 8088 {
		t.Errorf("Hub.Port = %d, want 8088", cfg.Hub.Port)
	}
	if cfg.Timing.ActivityTimeout != 3*time.Second {
		t.Errorf("ActivityTimeout = %v, want 3s", cfg.Timing.ActivityTimeout)
	}
	if !cfg.Catalog.IsActivity("tv") {
		t.Error("default alias tv should be an activity")
	}
	if err := cfg.Hub.Require(); err == nil {
		t.Error("Require() should fail without a host")
	}
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Hub.Host != "192.168.1.20" || cfg.Hub.RemoteID != "1234567" {
		t.Errorf("Hub = %+v", cfg.Hub)
	}
	if err := cfg.Hub.Require(); err != nil {
		t.Errorf("Require() = %v", err)
	}
	if cfg.Timing.ActivityTimeout != 5*time.Second {
		t.Errorf("ActivityTimeout = %v, want 5s", cfg.Timing.ActivityTimeout)
	}
	if cfg.Timing.PressReleaseGap != 80*time.Millisecond {
		t.Errorf("PressReleaseGap = %v, want 80ms", cfg.Timing.PressReleaseGap)
	}
	// Keys absent from the file keep their baseline.
	if cfg.Timing.StatusTimeout != 2*time.Second {
		t.Errorf("StatusTimeout = %v, want 2s", cfg.Timing.StatusTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	a, ok := cfg.Catalog.Activity("tv")
	if !ok || a.ID != "12345678" {
		t.Errorf("Activity(tv) = %+v, %v", a, ok)
	}
	if _, ok := cfg.Catalog.ActivityAliases["shield"]; !ok {
		t.Error("default aliases should survive a file without activityAliases")
	}
	d, ok := cfg.Catalog.Audio()
	if !ok || d.ID != "22222222" {
		t.Errorf("Audio() = %+v, %v", d, ok)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HUBCTL_HUB_HOST", "10.0.0.5")
	t.Setenv("HUBCTL_HUB_REMOTE_ID", "999")
	t.Setenv("HUBCTL_TIMING_ACTIVITY_TIMEOUT", "7s")
	t.Setenv("HUBCTL_TIMING_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("HUBCTL_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Hub.Host != "10.0.0.5" {
		t.Errorf("Hub.Host = %q, want env override", cfg.Hub.Host)
	}
	if cfg.Hub.RemoteID != "999" {
		t.Errorf("Hub.RemoteID = %q, want env override", cfg.Hub.RemoteID)
	}
	if cfg.Timing.ActivityTimeout != 7*time.Second {
		t.Errorf("ActivityTimeout = %v, want 7s", cfg.Timing.ActivityTimeout)
	}
	if cfg.Timing.RetryMaxAttempts != 5 {
		t.Errorf("RetryMaxAttempts = %d, want 5", cfg.Timing.RetryMaxAttempts)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("HUBCTL_TIMING_PRESS_TIMEOUT", "fast")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() should reject a malformed duration")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "hub:\n  hots: x\n", "failed to load"},
		{"device without id", "devices:\n  tv: {name: TV}\n", "device \"tv\" has no id"},
		{"audio without device", "audioCommands:\n  vol+: VolumeUp\n", "without audioDevice"},
		{"audio device missing", "audioDevice: amp\n", "not a configured device"},
		{"bad level", "logging:\n  level: chatty\n", "logging validation failed"},
		{"bad port", "hub:\n  port: 70000\n", "port must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestHubURL(t *testing.T) {
	h := HubConfig{Host: "192.168.1.20", Port: 8088, RemoteID: "1234567"}
	want := "ws://192.168.1.20:8088/?domain=svcs.myharmony.com&hubId=1234567"
	if got := h.URL(); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "hubctl.example.yaml"))
	if err != nil {
		t.Fatalf("Load(example) failed: %v", err)
	}
	if err := cfg.Hub.Require(); err != nil {
		t.Errorf("Require() = %v", err)
	}
	for _, alias := range []string{"tv", "music", "shield"} {
		if _, ok := cfg.Catalog.Activity(alias); !ok {
			t.Errorf("Activity(%q) does not resolve", alias)
		}
	}
}
