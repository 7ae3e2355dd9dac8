package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/keystore"
	"github.com/rs/zerolog"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	fs := newFakeStrapi(t)
	cfg := testConfig(fs.srv.URL)
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	engine, err := New().WithConfig(cfg).WithKeystore(keystore.NewMemory()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Login(context.Background(), "ana@example.com", "pw-ana"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := engine.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n := sink.count.Load(); n != 0 {
		t.Fatalf("sink called %d times with audit disabled", n)
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditBlockedEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	dispatcher.Emit(ctx, AuditEvent{EventType: "e3"})
	if time.Since(start) > time.Second {
		t.Fatal("emit ignored context cancellation")
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, sink)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	if sink.count.Load() != 1 {
		t.Fatalf("sink saw %d events, want the one queued before Close", sink.count.Load())
	}
}

func TestAuditFlushDeliversQueuedEvents(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)
	defer dispatcher.Close()

	for i := 0; i < 10; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e"})
	}
	if err := dispatcher.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := sink.count.Load(); n != 10 {
		t.Fatalf("sink saw %d events after Flush, want 10", n)
	}
}

func TestAuditFlushHonoursContext(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := dispatcher.Flush(ctx); err == nil {
		t.Fatal("Flush returned while the sink was blocked")
	}

	close(sink.gate)
	dispatcher.Close()
	if err := dispatcher.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after Close: %v", err)
	}
}

func TestLogoutFlushesSessionAuditEvents(t *testing.T) {
	fs := newFakeStrapi(t)
	cfg := testConfig(fs.srv.URL)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	sink := &countingSink{}
	engine, err := New().WithConfig(cfg).WithKeystore(keystore.NewMemory()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.Login(ctx, "ana@example.com", "pw-ana"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := engine.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n := sink.count.Load(); n != 2 {
		t.Fatalf("sink saw %d events when Logout returned, want login and logout", n)
	}
}

func TestAuditNilDispatcherIsSafe(t *testing.T) {
	var d *auditDispatcher
	d.Emit(context.Background(), AuditEvent{EventType: "e1"})
	d.Close()
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("nil Flush: %v", err)
	}
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
	if newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{}) != nil {
		t.Fatal("disabled config produced a dispatcher")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: AuditLoginSuccess,
		UserID:    7,
		IP:        "127.0.0.1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogout, Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if ev.EventType != AuditLoginSuccess || ev.UserID != 7 {
		t.Fatalf("decoded %+v", ev)
	}
}

func TestAuditLoggerSinkLevels(t *testing.T) {
	var buf syncBuffer
	sink := NewLoggerSink(zerolog.New(&buf))

	sink.Emit(context.Background(), AuditEvent{EventType: AuditLoginSuccess, UserID: 7, Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditLoginFailure, Error: "invalid credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["level"] != "info" || first["event"] != AuditLoginSuccess || first["user_id"] != "7" || first["component"] != "audit" {
		t.Fatalf("success record = %v", first)
	}
	if second["level"] != "warn" || second["error"] != "invalid credentials" {
		t.Fatalf("failure record = %v", second)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, "ana@example.com", "nope-wrong"); err == nil {
		t.Fatal("expected login failure")
	}
	if _, err := env.engine.Login(ctx, "ana@example.com", "pw-ana"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	token, _, _ := env.keys.Get(ctx, keystore.KeyToken)
	if err := env.engine.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	var events []AuditEvent
	timeout := time.After(2 * time.Second)
collect:
	for len(events) < 3 {
		select {
		case ev := <-env.sink.Events():
			events = append(events, ev)
		case <-timeout:
			break collect
		}
	}
	if len(events) != 3 {
		t.Fatalf("got %d audit events, want 3", len(events))
	}

	for _, ev := range events {
		raw, _ := json.Marshal(ev)
		for _, needle := range []string{"nope-wrong", "pw-ana", token} {
			if bytes.Contains(raw, []byte(needle)) {
				t.Fatalf("sensitive value leaked in %s event", ev.EventType)
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
