package hubsim

import (
	"testing"
	"time"

	hubcommand "github.com/homehub/hubctl/internal/command"
	"github.com/homehub/hubctl/internal/hubtest"
)

func TestClientConformsAgainstEmulator(t *testing.T) {
	newHub := func(t *testing.T) hubcommand.HubPort {
		return startSim(t, testConfig(), singleAttempt()).client
	}
	report := hubtest.RunConformance(t, newHub, hubtest.Capabilities{
		Name:            "hubclient over hubsim",
		Activities:      []string{"12345678", "87654321"},
		UnknownActivity: "404",
		DeviceID:        "11111111",
		DeviceCommand:   "VolumeUp",
		MaxLatency:      time.Second,
	})
	if report.TotalTests < 8 {
		t.Errorf("only %d checks ran", report.TotalTests)
	}
}
