package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Entry is a single audit record.
type Entry struct {
	Seq      uint64
	Command  string
	Action   string
	Category string
	Origin   string
	Outcome  string // confirmed, unconfirmed, failed, rejected
	Code     string // SUCCESS or a normalized failure code
	Latency  time.Duration
}

// Logger writes audit entries.
type Logger struct {
	log *zap.Logger
}

// NewLogger creates an audit logger on top of base. A nil base discards
// entries.
func NewLogger(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{log: base.Named("audit")}
}

// Record writes e. Failures are logged at warn, everything else at info.
func (l *Logger) Record(e Entry) {
	fields := []zap.Field{
		zap.Uint64("seq", e.Seq),
		zap.String("command", e.Command),
		zap.String("category", e.Category),
		zap.String("origin", originOrUnknown(e.Origin)),
		zap.String("outcome", e.Outcome),
		zap.String("code", codeOrSuccess(e.Code)),
		zap.Duration("latency", e.Latency),
	}
	if e.Action != "" {
		fields = append(fields, zap.String("action", e.Action))
	}
	if e.Outcome == "failed" {
		l.log.Warn("command", fields...)
		return
	}
	l.log.Info("command", fields...)
}

type originKey struct{}

// WithOrigin tags ctx with the producer that submitted a command, e.g.
// "cli" or "api:<correlation id>".
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// Origin returns the origin stored by WithOrigin, or "unknown".
func Origin(ctx context.Context) string {
	if ctx != nil {
		if o, ok := ctx.Value(originKey{}).(string); ok && o != "" {
			return o
		}
	}
	return "unknown"
}

func originOrUnknown(o string) string {
	if o == "" {
		return "unknown"
	}
	return o
}

func codeOrSuccess(c string) string {
	if c == "" {
		return "SUCCESS"
	}
	return c
}
