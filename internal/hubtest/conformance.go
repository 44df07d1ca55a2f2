// Package hubtest provides a conformance suite for command.HubPort
// implementations.
package hubtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/homehub/hubctl/internal/command"
	"github.com/homehub/hubctl/internal/hubclient"
)

// Capabilities describes what the hub under test is expected to know.
type Capabilities struct {
	Name            string
	Activities      []string // activity ids the hub accepts
	UnknownActivity string   // an id the hub must reject; empty skips the check
	DeviceID        string
	DeviceCommand   string
	MaxLatency      time.Duration // per call; 0 skips timing checks
}

// ConformanceResult represents the result of one conformance check.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]any
}

// ConformanceReport collects every check of one run.
type ConformanceReport struct {
	HubName       string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the suite. newHub is called once per group of checks
// so that groups do not share state.
func RunConformance(t *testing.T, newHub func(t *testing.T) command.HubPort, caps Capabilities) *ConformanceReport {
	t.Helper()
	start := time.Now()

	report := &ConformanceReport{HubName: caps.Name, OverallPassed: true}
	if report.HubName == "" {
		report.HubName = "unnamed hub"
	}

	runStatusChecks(t, newHub, caps, report)
	runActivityChecks(t, newHub, caps, report)
	runDeviceChecks(t, newHub, caps, report)
	runConcurrencyChecks(t, newHub, caps, report)
	runCancellationChecks(t, newHub, report)

	report.Duration = time.Since(start)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("hub conformance failed: %d/%d checks passed", report.PassedTests, report.TotalTests)
	}
	return report
}

func runStatusChecks(t *testing.T, newHub func(*testing.T) command.HubPort, caps Capabilities, report *ConformanceReport) {
	hub := newHub(t)
	result := newResult("CurrentActivity_Basic")
	start := time.Now()

	id, err := hub.CurrentActivity(context.Background())
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		result.Error = fmt.Sprintf("CurrentActivity failed: %v", err)
	case id == "":
		result.Error = "CurrentActivity returned an empty id"
	default:
		result.Passed = true
		result.Details["activity"] = id
	}
	checkLatency(&result, caps)
	report.addResult(result)
}

func runActivityChecks(t *testing.T, newHub func(*testing.T) command.HubPort, caps Capabilities, report *ConformanceReport) {
	hub := newHub(t)
	ctx := context.Background()

	ids := append([]string(nil), caps.Activities...)
	ids = append(ids, hubclient.PowerOffActivity)
	for _, id := range ids {
		result := newResult("StartActivity_" + id)
		start := time.Now()

		res, err := hub.StartActivity(ctx, id)
		result.Duration = time.Since(start)

		switch {
		case err != nil:
			result.Error = fmt.Sprintf("StartActivity(%s) failed: %v", id, err)
		case res.Outcome != hubclient.OutcomeConfirmed && res.Outcome != hubclient.OutcomeUnconfirmed:
			result.Error = fmt.Sprintf("StartActivity(%s) returned outcome %v", id, res.Outcome)
		default:
			result.Passed = true
			result.Details["outcome"] = res.Outcome
		}
		checkLatency(&result, caps)
		report.addResult(result)
	}

	if caps.UnknownActivity == "" {
		return
	}
	result := newResult("StartActivity_Unknown")
	start := time.Now()
	_, err := hub.StartActivity(ctx, caps.UnknownActivity)
	result.Duration = time.Since(start)

	var hubErr *hubclient.HubError
	switch {
	case err == nil:
		result.Error = fmt.Sprintf("StartActivity(%s) should have failed", caps.UnknownActivity)
	case !errors.As(err, &hubErr):
		result.Error = fmt.Sprintf("StartActivity(%s) should return a hub rejection, got: %v", caps.UnknownActivity, err)
	default:
		result.Passed = true
		result.Details["code"] = int(hubErr.Code)
	}
	report.addResult(result)
}

func runDeviceChecks(t *testing.T, newHub func(*testing.T) command.HubPort, caps Capabilities, report *ConformanceReport) {
	if caps.DeviceID == "" {
		return
	}
	hub := newHub(t)

	for _, pressRelease := range []bool{true, false} {
		name := "SendDeviceCommand_Single"
		if pressRelease {
			name = "SendDeviceCommand_PressRelease"
		}
		result := newResult(name)
		start := time.Now()

		res, err := hub.SendDeviceCommand(context.Background(), caps.DeviceID, caps.DeviceCommand, pressRelease)
		result.Duration = time.Since(start)

		if err != nil {
			result.Error = fmt.Sprintf("SendDeviceCommand(%s, %s) failed: %v", caps.DeviceID, caps.DeviceCommand, err)
		} else {
			result.Passed = true
			result.Details["outcome"] = res.Outcome
		}
		checkLatency(&result, caps)
		report.addResult(result)
	}
}

// runConcurrencyChecks issues overlapping status queries; every caller must
// see the same answer.
func runConcurrencyChecks(t *testing.T, newHub func(*testing.T) command.HubPort, caps Capabilities, report *ConformanceReport) {
	hub := newHub(t)
	result := newResult("CurrentActivity_Concurrent")
	start := time.Now()

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]int{}
		errs []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := hub.CurrentActivity(context.Background())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seen[id]++
		}()
	}
	wg.Wait()
	result.Duration = time.Since(start)

	switch {
	case len(errs) > 0:
		result.Error = fmt.Sprintf("%d/%d concurrent queries failed: %v", len(errs), callers, errs[0])
	case len(seen) != 1:
		result.Error = fmt.Sprintf("concurrent queries disagree: %v", seen)
	default:
		result.Passed = true
		result.Details["callers"] = callers
	}
	report.addResult(result)
}

func runCancellationChecks(t *testing.T, newHub func(*testing.T) command.HubPort, report *ConformanceReport) {
	hub := newHub(t)
	result := newResult("CurrentActivity_Cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := hub.CurrentActivity(ctx)
	result.Duration = time.Since(start)

	if err == nil {
		result.Error = "CurrentActivity with a cancelled context should fail"
	} else {
		result.Passed = true
		result.Details["error"] = err.Error()
	}
	report.addResult(result)
}

func newResult(name string) ConformanceResult {
	return ConformanceResult{TestName: name, Details: make(map[string]any)}
}

func checkLatency(result *ConformanceResult, caps Capabilities) {
	if !result.Passed || caps.MaxLatency <= 0 || result.Duration <= caps.MaxLatency {
		return
	}
	result.Passed = false
	result.Error = fmt.Sprintf("took %v, limit %v", result.Duration, caps.MaxLatency)
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("HUB CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Hub: %s", report.HubName)
	t.Logf("Passed: %d/%d (%v)", report.PassedTests, report.TotalTests, report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))
	t.Logf("%-32s %-6s %-12s %s", "CHECK", "RESULT", "DURATION", "DETAILS")

	for _, result := range report.Results {
		status := "PASS"
		details := result.Error
		if !result.Passed {
			status = "FAIL"
		} else if len(result.Details) > 0 {
			parts := make([]string, 0, len(result.Details))
			for k, v := range result.Details {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			sort.Strings(parts)
			details = strings.Join(parts, ", ")
		}
		t.Logf("%-32s %-6s %-12s %s", result.TestName, status, result.Duration.Round(time.Microsecond), details)
	}
	t.Logf("%s", strings.Repeat("=", 80))
}
