package goSession

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Audit event types.
const (
	AuditLoginSuccess       = "login_success"
	AuditLoginFailure       = "login_failure"
	AuditLogout             = "logout"
	AuditSessionInvalidated = "session_invalidated"
	AuditSessionRestored    = "session_restored"
	AuditRestoreFailed      = "restore_failed"
	AuditUserRefreshed      = "user_refreshed"
	AuditUserRefreshFailed  = "user_refresh_failed"
)

// AuditEvent records one session lifecycle event. It never carries tokens or
// passwords.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    int               `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LoggerSink writes audit events as zerolog records: info for successes,
// warn for failures.
type LoggerSink struct {
	log zerolog.Logger
}

func NewLoggerSink(log zerolog.Logger) LoggerSink {
	return LoggerSink{log: log.With().Str("component", "audit").Logger()}
}

func (s LoggerSink) Emit(_ context.Context, event AuditEvent) {
	ev := s.log.Info()
	if !event.Success {
		ev = s.log.Warn()
	}
	ev = ev.Time("at", event.Timestamp).Str("event", event.EventType)
	if event.UserID != 0 {
		ev = ev.Str("user_id", strconv.Itoa(event.UserID))
	}
	if event.SessionID != "" {
		ev = ev.Str("session_id", event.SessionID)
	}
	if event.IP != "" {
		ev = ev.Str("ip", event.IP)
	}
	if event.Error != "" {
		ev = ev.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit")
}
