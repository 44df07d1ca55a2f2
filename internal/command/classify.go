package command

import (
	"strings"

	"github.com/homehub/hubctl/internal/config"
)

// Category decides how a command interacts with admission and live updates.
type Category int

const (
	// CategoryExclusive changes the hub's activity. At most one runs or
	// waits at a time.
	CategoryExclusive Category = iota + 1
	// CategorySignal is an audio control sent to the audio device.
	CategorySignal
	// CategoryDevice is a single command sent to one device.
	CategoryDevice
)

func (c Category) String() string {
	switch c {
	case CategoryExclusive:
		return "exclusive"
	case CategorySignal:
		return "signal"
	case CategoryDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Classifier assigns categories from the catalog. It never changes the
// catalog and is safe for concurrent use.
type Classifier struct {
	catalog *config.Catalog
}

// NewClassifier creates a classifier over catalog. A nil catalog knows only
// the built-in activity aliases and audio toggles.
func NewClassifier(catalog *config.Catalog) *Classifier {
	if catalog == nil {
		catalog = &config.Catalog{ActivityAliases: config.DefaultActivityAliases()}
	}
	return &Classifier{catalog: catalog}
}

// Classify is case-insensitive. An explicit action always makes the command
// a Signal or Device command, even when name is also an activity.
func (c *Classifier) Classify(name, action string) Category {
	if strings.TrimSpace(action) != "" {
		if c.catalog.IsAudio(name) {
			return CategorySignal
		}
		return CategoryDevice
	}
	if c.catalog.IsActivity(name) {
		return CategoryExclusive
	}
	if c.catalog.IsAudio(name) {
		return CategorySignal
	}
	return CategoryDevice
}
