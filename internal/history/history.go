package history

import (
	"context"
	"log/slog"
	"time"
)

// Kind classifies an audit event.
type Kind string

const (
	KindRegister    Kind = "register"
	KindUnregister  Kind = "unregister"
	KindForward     Kind = "forward"
	KindActivate    Kind = "activate"
	KindOpen        Kind = "open"
	KindAction      Kind = "action"
	KindCommandLine Kind = "command_line"
)

// Event is a single coordination or activation event to be exported to
// external systems.
type Event struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail"`
}

// Sink is a destination for history events (audit/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder fans an event out to all configured sinks. Sink errors are
// logged, never propagated: audit trouble must not disturb activation.
// A nil *Recorder records nothing.
type Recorder struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
}

// NewRecorder builds a recorder over sinks. A nil logger falls back to
// slog.Default; a zero timeout defaults to one second per sink.
func NewRecorder(sinks []Sink, logger *slog.Logger, timeout time.Duration) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Recorder{sinks: sinks, logger: logger, timeout: timeout}
}

// Record stamps and delivers e to every sink.
func (r *Recorder) Record(e Event) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := s.Send(ctx, e); err != nil {
			r.logger.Warn("history sink send failed",
				slog.String("kind", string(e.Kind)),
				slog.String("service", e.Service),
				slog.Any("error", err))
		}
		cancel()
	}
}
