package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades every request and echoes frames back. When a frame
// equals "bye" the server closes the connection.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.PingInterval = 0
	return cfg
}

func TestSessionConnectSendReceive(t *testing.T) {
	srv := echoServer(t)
	s := New(testConfig(wsURL(srv)), nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, StateConnected, s.State())

	// Connect is idempotent and keeps the same frame stream.
	frames := s.Frames()
	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, frames, s.Frames())

	require.NoError(t, s.Send(ctx, []byte(`{"id":"1"}`)))
	select {
	case got := <-frames:
		assert.JSONEq(t, `{"id":"1"}`, string(got))
	case <-ctx.Done():
		t.Fatal("no echo received")
	}
}

func TestSessionSendWithoutConnection(t *testing.T) {
	s := New(testConfig("ws://127.0.0.1:1"), nil)

	err := s.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrConnectionLost)

	_, open := <-s.Frames()
	assert.False(t, open, "frames of a disconnected session must be closed")
}

func TestSessionConnectRefused(t *testing.T) {
	srv := echoServer(t)
	url := wsURL(srv)
	srv.Close()

	s := New(testConfig(url), nil)
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "connect", terr.Op)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSessionRemoteCloseEndsFrames(t *testing.T) {
	srv := echoServer(t)
	s := New(testConfig(wsURL(srv)), nil)
	defer s.Close()

	var mu sync.Mutex
	var seen []State
	s.OnStateChange(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	frames := s.Frames()
	require.NoError(t, s.Send(ctx, []byte("bye")))

	select {
	case _, open := <-frames:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("frame stream not closed after remote close")
	}

	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, s.Send(ctx, []byte("x")), ErrConnectionLost)

	// A new connection opens a fresh frame stream.
	require.NoError(t, s.Connect(ctx))
	assert.NotEqual(t, frames, s.Frames())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, StateConnecting)
	assert.Contains(t, seen, StateDisconnected)
}

func TestSessionDegradedRecoversOnInboundFrame(t *testing.T) {
	srv := echoServer(t)
	s := New(testConfig(wsURL(srv)), nil)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	s.MarkDegraded()
	assert.Equal(t, StateDegraded, s.State())
	assert.True(t, s.State().Usable())

	require.NoError(t, s.Send(ctx, []byte("ping")))
	<-s.Frames()
	assert.Equal(t, StateConnected, s.State())
}

// deafServer upgrades and then never reads, so pings go unanswered.
func deafServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestSessionDropsPeerWithoutPongs(t *testing.T) {
	srv := deafServer(t)
	cfg := testConfig(wsURL(srv))
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PongWait = 80 * time.Millisecond
	s := New(cfg, nil)
	defer s.Close()

	require.NoError(t, s.Connect(context.Background()))
	frames := s.Frames()

	select {
	case _, open := <-frames:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("half-open connection was not dropped")
	}
	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, time.Second, 10*time.Millisecond)
}

func TestSessionPongsKeepConnectionAlive(t *testing.T) {
	srv := echoServer(t)
	cfg := testConfig(wsURL(srv))
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PongWait = 80 * time.Millisecond
	s := New(cfg, nil)
	defer s.Close()

	require.NoError(t, s.Connect(context.Background()))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, StateConnected, s.State(), "answered pings extend the read deadline")
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	srv := echoServer(t)
	s := New(testConfig(wsURL(srv)), nil)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateDegraded:     "degraded",
		State(42):         "unknown",
	}
	for st, want := range tests {
		assert.Equal(t, want, st.String())
	}
}
