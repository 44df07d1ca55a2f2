package audit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecord(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(zap.New(core))

	l.Record(Entry{Seq: 1, Command: "tv", Category: "exclusive", Origin: "cli", Outcome: "confirmed", Latency: 40 * time.Millisecond})
	l.Record(Entry{Seq: 2, Command: "samsung", Action: "VolumeUp", Category: "device", Outcome: "failed", Code: "NETWORK"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first.LoggerName != "audit" {
		t.Errorf("LoggerName = %q, want audit", first.LoggerName)
	}
	if first.Level != zapcore.InfoLevel {
		t.Errorf("Level = %v, want info", first.Level)
	}
	ctx := first.ContextMap()
	if ctx["code"] != "SUCCESS" {
		t.Errorf("code = %v, want SUCCESS", ctx["code"])
	}
	if _, ok := ctx["action"]; ok {
		t.Error("empty action should be omitted")
	}

	second := entries[1]
	if second.Level != zapcore.WarnLevel {
		t.Errorf("failed entry level = %v, want warn", second.Level)
	}
	ctx = second.ContextMap()
	if ctx["origin"] != "unknown" {
		t.Errorf("origin = %v, want unknown", ctx["origin"])
	}
	if ctx["action"] != "VolumeUp" {
		t.Errorf("action = %v, want VolumeUp", ctx["action"])
	}
}

func TestNilBaseDiscards(t *testing.T) {
	NewLogger(nil).Record(Entry{Command: "tv"})
}

func TestOrigin(t *testing.T) {
	if got := Origin(context.Background()); got != "unknown" {
		t.Errorf("Origin() = %q, want unknown", got)
	}
	ctx := WithOrigin(context.Background(), "api:abc")
	if got := Origin(ctx); got != "api:abc" {
		t.Errorf("Origin() = %q, want api:abc", got)
	}
}
