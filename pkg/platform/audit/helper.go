package audit

import (
	"context"
	"log/slog"

	"mdlgate/pkg/requestcontext"
)

// Emitter receives audit events. MemorySink satisfies it.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger writes audit events to the structured log and, when configured,
// to an Emitter.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger. Both arguments are optional.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{textLogger: textLogger, emitter: emitter}
}

// Log records event for subject. attributes are extra slog key/value pairs
// for the text log only.
func (l *Logger) Log(ctx context.Context, action Action, subject, decision, reason string, attributes ...any) {
	if l == nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)

	if l.textLogger != nil {
		args := append([]any{
			"event", string(action),
			"log_type", "audit",
			"subject", subject,
			"decision", decision,
		}, attributes...)
		if reason != "" {
			args = append(args, "reason", reason)
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		l.textLogger.InfoContext(ctx, string(action), args...)
	}

	if l.emitter == nil {
		return
	}
	err := l.emitter.Emit(ctx, Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    action,
		Subject:   subject,
		Decision:  decision,
		Reason:    reason,
		RequestID: requestID,
	})
	if err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", string(action),
		)
	}
}
