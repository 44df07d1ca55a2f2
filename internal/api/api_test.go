package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/homehub/hubctl/internal/command"
	"github.com/homehub/hubctl/internal/config"
	"github.com/homehub/hubctl/internal/hubclient"
	"github.com/homehub/hubctl/internal/telemetry"
	"github.com/homehub/hubctl/internal/transport"
)

// stubHub answers every command immediately.
type stubHub struct {
	mu      sync.Mutex
	sent    []string
	release chan struct{} // when set, StartActivity waits for it
}

func (h *stubHub) StartActivity(ctx context.Context, id string) (hubclient.Result, error) {
	h.mu.Lock()
	h.sent = append(h.sent, "start "+id)
	release := h.release
	h.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return hubclient.Result{}, ctx.Err()
		}
	}
	return hubclient.Result{Outcome: hubclient.OutcomeConfirmed}, nil
}

func (h *stubHub) SendDeviceCommand(ctx context.Context, deviceID, cmd string, pressRelease bool) (hubclient.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, deviceID+" "+cmd)
	return hubclient.Result{Outcome: hubclient.OutcomeUnconfirmed}, nil
}

func (h *stubHub) CurrentActivity(ctx context.Context) (string, error) { return "-1", nil }

func (h *stubHub) State() transport.State { return transport.StateConnected }

func testCatalog() *config.Catalog {
	return &config.Catalog{
		Activities:      map[string]config.Activity{"watch_tv": {ID: "100", Name: "Watch TV"}},
		ActivityAliases: config.DefaultActivityAliases(),
		Devices:         map[string]config.Device{"samsung": {ID: "1", Name: "Samsung TV", Commands: []string{"PowerOn"}}},
		AudioCommands:   map[string]string{"mute": "Mute"},
		AudioDevice:     "samsung",
	}
}

type testEnv struct {
	srv  *httptest.Server
	hub  *stubHub
	tele *telemetry.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := &stubHub{}
	timing := config.LoadBaseline()
	timing.LivePollInterval = 0
	timing.DispatchSpacing = 0
	tele := telemetry.NewHub(telemetry.Config{}, logger)
	catalog := testCatalog()
	orch := command.NewOrchestrator(hub, catalog, timing, command.Options{Notifier: tele}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = orch.Run(ctx)
	}()

	s := NewServer(Deps{Orchestrator: orch, Telemetry: tele, Catalog: catalog, Hub: hub}, 5*time.Second, 5*time.Second, time.Minute, logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		tele.Stop()
		srv.Close()
		cancel()
		<-done
	})
	return &testEnv{srv: srv, hub: hub, tele: tele}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, Response) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func dataMap(t *testing.T, env Response) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	require.True(t, ok, "data is %T", env.Data)
	return m
}

func TestSubmitCommandAccepted(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodPost, "/api/v1/commands", `{"command":"samsung","action":"PowerOn"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "ok", env.Result)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, env.CorrelationID, resp.Header.Get(CorrelationHeader))

	data := dataMap(t, env)
	assert.Equal(t, "device", data["category"])
	assert.Equal(t, float64(1), data["seq"])
}

func TestSubmitCommandWait(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodPost, "/api/v1/commands", `{"command":"tv","wait":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, env)
	assert.Equal(t, "exclusive", data["category"])
	assert.Equal(t, "confirmed", data["outcome"])

	_, env = e.do(t, http.MethodPost, "/api/v1/commands", `{"command":"mute","wait":true}`)
	assert.Equal(t, "unconfirmed", dataMap(t, env)["outcome"])
}

func TestSubmitCommandErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed", `{"command":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", `{"command":"tv","radio":"x"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"trailing data", `{"command":"tv"}{}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing command", `{"action":"PowerOn"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"not configured", `{"command":"toaster","action":"PowerOn","wait":true}`, http.StatusNotFound, "NOT_CONFIGURED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := e.do(t, http.MethodPost, "/api/v1/commands", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "error", env.Result)
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
}

func TestSecondActivityConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.hub.mu.Lock()
	e.hub.release = make(chan struct{})
	e.hub.mu.Unlock()
	defer close(e.hub.release)

	resp, _ := e.do(t, http.MethodPost, "/api/v1/commands", `{"command":"tv"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, env := e.do(t, http.MethodPost, "/api/v1/commands", `{"command":"off"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "BUSY", env.Code)

	_, env = e.do(t, http.MethodGet, "/api/v1/state", "")
	state := dataMap(t, env)
	assert.Equal(t, true, state["exclusiveInProgress"])
	assert.Equal(t, false, state["controlsEnabled"])

	resp, _ = e.do(t, http.MethodPost, "/api/v1/recover", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, env = e.do(t, http.MethodGet, "/api/v1/state", "")
	assert.Equal(t, true, dataMap(t, env)["controlsEnabled"])
}

func TestCorrelationIDIsReused(t *testing.T) {
	e := newTestEnv(t)
	id := "6f1c2f4e-8e2a-4a55-9d43-0f2c8c1d9b11"

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set(CorrelationHeader, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, id, env.CorrelationID)
}

func TestCatalog(t *testing.T) {
	e := newTestEnv(t)
	resp, env := e.do(t, http.MethodGet, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, env)
	activities, ok := data["activities"].([]any)
	require.True(t, ok)
	require.Len(t, activities, 1)
	assert.Equal(t, "watch_tv", activities[0].(map[string]any)["alias"])
	assert.Equal(t, "samsung", data["audioDevice"])
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	resp, env := e.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, env)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "connected", data["hub"])
}

func TestHealthDegradedWithoutOrchestrator(t *testing.T) {
	s := NewServer(Deps{}, time.Second, time.Second, time.Second, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "SERVICE_DEGRADED")
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/commands"},
		{http.MethodPost, "/api/v1/state"},
		{http.MethodGet, "/api/v1/recover"},
		{http.MethodDelete, "/api/v1/catalog"},
	} {
		resp, env := e.do(t, tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, tc.path)
		assert.Equal(t, "METHOD_NOT_ALLOWED", env.Code)
	}
}

func TestTelemetryStreamsCommandProgress(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.srv.URL+"/api/v1/telemetry", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return e.tele.Clients() == 1 }, time.Second, 5*time.Millisecond)

	post, _ := e.do(t, http.MethodPost, "/api/v1/commands", `{"command":"samsung","action":"PowerOn"}`)
	require.Equal(t, http.StatusAccepted, post.StatusCode)

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok)
			if strings.Contains(line, "Processing") {
				return
			}
		case <-deadline:
			t.Fatal("no processing status on the stream")
		}
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("x: %w", ErrBadRequest), http.StatusBadRequest, "BAD_REQUEST"},
		{fmt.Errorf("tv: %w", command.ErrAdmissionRejected), http.StatusConflict, "BUSY"},
		{command.NormalizeError("tv", fmt.Errorf("lost: %w", transport.ErrConnectionLost)), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{command.NormalizeError("tv", hubclient.ErrTimeout), http.StatusGatewayTimeout, "TIMEOUT"},
		{command.NormalizeError("tv", &hubclient.HubError{Code: 500}), http.StatusBadGateway, "HUB_REJECTED"},
		{command.ErrStopped, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{&APIError{Status: http.StatusTeapot, Code: "TEAPOT"}, http.StatusTeapot, "TEAPOT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			got := ToAPIError(tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}
