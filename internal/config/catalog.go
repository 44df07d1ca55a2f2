package config

import (
	"sort"
	"strings"
)

// Activity is a hub activity reachable by alias.
type Activity struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Device is a hub device reachable by alias. Commands optionally lists the
// IR commands offered in listings; any command name is still sent as-is.
type Device struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Commands []string `yaml:"commands,omitempty"`
}

// Audio toggles switch the audio device on or off.
const (
	AudioOn  = "audio-on"
	AudioOff = "audio-off"
)

// Catalog maps operator aliases to hub identifiers. Lookups are
// case-insensitive. A Catalog is never mutated after Load.
type Catalog struct {
	Activities map[string]Activity `yaml:"activities"`
	// ActivityAliases maps a short alias to catalog keys it may stand for,
	// for example tv to watch_tv.
	ActivityAliases map[string][]string `yaml:"activityAliases"`
	Devices         map[string]Device   `yaml:"devices"`
	// AudioCommands maps a quick alias (vol+) to a command of AudioDevice.
	AudioCommands map[string]string `yaml:"audioCommands"`
	AudioDevice   string            `yaml:"audioDevice"`
}

// DefaultActivityAliases are the short names always treated as activities.
func DefaultActivityAliases() map[string][]string {
	return map[string][]string{
		"tv":     {"watch_tv", "watch tv"},
		"music":  {"listen_to_music", "listen to music"},
		"shield": {"nvidia_shield", "nvidia shield", "gaming"},
		"off":    {"poweroff", "power_off"},
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalize lower-cases every alias so lookups can stay exact.
func (c *Catalog) normalize() {
	if c.Activities != nil {
		m := make(map[string]Activity, len(c.Activities))
		for k, v := range c.Activities {
			m[key(k)] = v
		}
		c.Activities = m
	}
	if c.ActivityAliases != nil {
		m := make(map[string][]string, len(c.ActivityAliases))
		for k, v := range c.ActivityAliases {
			targets := make([]string, len(v))
			for i, t := range v {
				targets[i] = key(t)
			}
			m[key(k)] = targets
		}
		c.ActivityAliases = m
	}
	if c.Devices != nil {
		m := make(map[string]Device, len(c.Devices))
		for k, v := range c.Devices {
			m[key(k)] = v
		}
		c.Devices = m
	}
	if c.AudioCommands != nil {
		m := make(map[string]string, len(c.AudioCommands))
		for k, v := range c.AudioCommands {
			m[key(k)] = v
		}
		c.AudioCommands = m
	}
	c.AudioDevice = key(c.AudioDevice)
}

// IsActivity reports whether name is an activity key or activity alias.
func (c *Catalog) IsActivity(name string) bool {
	k := key(name)
	if _, ok := c.Activities[k]; ok {
		return true
	}
	_, ok := c.ActivityAliases[k]
	return ok
}

// Activity resolves an activity key or alias. Alias targets match with
// spaces and underscores interchangeable.
func (c *Catalog) Activity(name string) (Activity, bool) {
	k := key(name)
	if a, ok := c.Activities[k]; ok {
		return a, true
	}
	for _, target := range c.ActivityAliases[k] {
		for _, variant := range []string{target, strings.ReplaceAll(target, " ", "_"), strings.ReplaceAll(target, "_", " ")} {
			if a, ok := c.Activities[variant]; ok {
				return a, true
			}
		}
	}
	return Activity{}, false
}

// ActivityName returns the display name for a hub activity id.
func (c *Catalog) ActivityName(id string) (string, bool) {
	for _, a := range c.Activities {
		if a.ID == id {
			return a.Name, true
		}
	}
	return "", false
}

// Device resolves a device alias.
func (c *Catalog) Device(name string) (Device, bool) {
	d, ok := c.Devices[key(name)]
	return d, ok
}

// IsAudio reports whether name is an audio alias or an audio toggle.
func (c *Catalog) IsAudio(name string) bool {
	k := key(name)
	if k == AudioOn || k == AudioOff {
		return true
	}
	_, ok := c.AudioCommands[k]
	return ok
}

// AudioCommand resolves an audio alias or toggle to the command sent to the
// audio device.
func (c *Catalog) AudioCommand(name string) (string, bool) {
	switch k := key(name); k {
	case AudioOn:
		return "PowerOn", true
	case AudioOff:
		return "PowerOff", true
	default:
		cmd, ok := c.AudioCommands[k]
		return cmd, ok
	}
}

// Audio returns the device that receives audio commands.
func (c *Catalog) Audio() (Device, bool) {
	if c.AudioDevice == "" {
		return Device{}, false
	}
	return c.Device(c.AudioDevice)
}

// ActivityKeys returns activity aliases in sorted order.
func (c *Catalog) ActivityKeys() []string { return sortedKeys(c.Activities) }

// DeviceKeys returns device aliases in sorted order.
func (c *Catalog) DeviceKeys() []string { return sortedKeys(c.Devices) }

// AudioKeys returns audio aliases in sorted order.
func (c *Catalog) AudioKeys() []string { return sortedKeys(c.AudioCommands) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
