package command

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/homehub/hubctl/internal/config"
)

func testCatalog() *config.Catalog {
	return &config.Catalog{
		Activities: map[string]config.Activity{
			"watch_tv": {ID: "100", Name: "Watch TV"},
			"music":    {ID: "200", Name: "Listen to Music"},
		},
		ActivityAliases: config.DefaultActivityAliases(),
		Devices: map[string]config.Device{
			"samsung": {ID: "1", Name: "Samsung TV"},
			"onkyo":   {ID: "2", Name: "Onkyo Receiver"},
		},
		AudioCommands: map[string]string{"vol+": "VolumeUp", "vol-": "VolumeDown", "mute": "Mute"},
		AudioDevice:   "onkyo",
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(testCatalog())

	tests := []struct {
		name   string
		action string
		want   Category
	}{
		{"tv", "", CategoryExclusive},
		{"TV", "", CategoryExclusive},
		{"watch_tv", "", CategoryExclusive},
		{"shield", "", CategoryExclusive}, // alias without a catalog entry
		{"off", "", CategoryExclusive},
		{"vol+", "", CategorySignal},
		{"MUTE", "", CategorySignal},
		{"audio-on", "", CategorySignal},
		{"audio-off", "", CategorySignal},
		{"mute", "PowerOff", CategorySignal},
		{"samsung", "VolumeUp", CategoryDevice},
		{"tv", "PowerOn", CategoryDevice}, // explicit action wins over the activity
		{"samsung", "", CategoryDevice},
		{"toaster", "", CategoryDevice},
		{"samsung", "   ", CategoryDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.name, tt.action))
		})
	}
}

func TestClassifyIsStable(t *testing.T) {
	c := NewClassifier(testCatalog())
	for i := 0; i < 100; i++ {
		assert.Equal(t, CategoryExclusive, c.Classify("music", ""))
		assert.Equal(t, CategorySignal, c.Classify("vol-", ""))
		assert.Equal(t, CategoryDevice, c.Classify("onkyo", "Input"))
	}
}

func TestClassifyNilCatalog(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, CategoryExclusive, c.Classify("tv", ""))
	assert.Equal(t, CategorySignal, c.Classify("audio-on", ""))
	assert.Equal(t, CategoryDevice, c.Classify("vol+", ""))
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "exclusive", CategoryExclusive.String())
	assert.Equal(t, "signal", CategorySignal.String())
	assert.Equal(t, "device", CategoryDevice.String())
	assert.Equal(t, "unknown", Category(0).String())
}
