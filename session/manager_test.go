package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/keystore"
	"github.com/MrEthical07/goSession/model"
	gjwt "github.com/golang-jwt/jwt/v5"
)

var errRejected = errors.New("401")

type stubFetcher struct {
	mu    sync.Mutex
	user  *model.User
	err   error
	calls int
	gate  chan struct{}
}

func (f *stubFetcher) FetchCurrentUser(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.err
}

func testUser(id int, email string) *model.User {
	return &model.User{ID: id, Username: "u", Email: email}
}

func newManagerTest(t *testing.T, f *stubFetcher) (*Manager, *keystore.Memory) {
	t.Helper()
	ks := keystore.NewMemory()
	opts := Options{
		Keystore:       ks,
		IsUnauthorized: func(err error) bool { return errors.Is(err, errRejected) },
	}
	if f != nil {
		opts.Fetcher = f
	}
	m, err := NewManager(opts)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, ks
}

func TestStartSessionSetsTokenAndUser(t *testing.T) {
	m, _ := newManagerTest(t, nil)
	ctx := context.Background()
	u := testUser(1, "x@y.com")

	if err := m.StartSession(ctx, "t1", u); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	tok, ok := m.Token(ctx)
	if !ok || tok != "t1" {
		t.Fatalf("expected token t1, got %q %v", tok, ok)
	}
	if cur := m.CurrentUser(); cur == nil || cur.ID != 1 {
		t.Fatalf("expected current user 1, got %+v", cur)
	}
	if m.State() != StateSignedIn {
		t.Fatalf("expected signed in, got %s", m.State())
	}
	if m.Info().SessionID == "" {
		t.Fatal("expected a session id")
	}

	u.Email = "mutated@y.com"
	if m.CurrentUser().Email != "x@y.com" {
		t.Fatal("manager must not share the caller's user value")
	}
}

func TestStartSessionRejectsIncompleteInput(t *testing.T) {
	m, _ := newManagerTest(t, nil)
	if err := m.StartSession(context.Background(), "", testUser(1, "a@b.c")); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if err := m.StartSession(context.Background(), "t", nil); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestIsSameUserCaseInsensitive(t *testing.T) {
	m, _ := newManagerTest(t, nil)
	if m.IsSameUser("x@y.com") {
		t.Fatal("no last email yet")
	}
	_ = m.StartSession(context.Background(), "t1", testUser(1, "x@y.com"))

	if !m.IsSameUser("X@Y.com") {
		t.Fatal("expected case-insensitive match")
	}
	if m.IsSameUser("z@y.com") {
		t.Fatal("different email must not match")
	}
}

func TestLogoutClearsAndBroadcasts(t *testing.T) {
	m, ks := newManagerTest(t, nil)
	ctx := context.Background()
	_ = m.StartSession(ctx, "t1", testUser(7, "a@b.c"))

	var order []string
	m.Subscribe(func(u *model.User) {
		if u == nil {
			order = append(order, "user:nil")
		}
	})
	var events []Event
	m.OnLogout(func(ev Event) {
		order = append(order, "logout")
		events = append(events, ev)
	})

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, ok := m.Token(ctx); ok {
		t.Fatal("token should be removed")
	}
	if ks.Len() != 0 {
		t.Fatal("keystore should be empty")
	}
	if m.CurrentUser() != nil || m.State() != StateSignedOut {
		t.Fatal("user should be cleared")
	}
	if m.IsSameUser("a@b.c") {
		t.Fatal("last email should be cleared")
	}
	if len(events) != 1 || events[0].Reason != ReasonLogout || events[0].UserID != 7 {
		t.Fatalf("unexpected events %+v", events)
	}
	if len(order) != 2 || order[0] != "user:nil" || order[1] != "logout" {
		t.Fatalf("user observers must run before logout observers, got %v", order)
	}
}

func TestClearSessionDoesNotBroadcast(t *testing.T) {
	m, _ := newManagerTest(t, nil)
	ctx := context.Background()
	_ = m.StartSession(ctx, "t1", testUser(1, "a@b.c"))

	fired := 0
	m.OnLogout(func(Event) { fired++ })

	if err := m.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}
	if fired != 0 {
		t.Fatal("ClearSession must not broadcast")
	}
	if _, ok := m.Token(ctx); ok {
		t.Fatal("token should be cleared")
	}
}

func TestSubscribeDeliversCurrentValueAndCancels(t *testing.T) {
	m, _ := newManagerTest(t, nil)
	ctx := context.Background()
	_ = m.StartSession(ctx, "t1", testUser(3, "a@b.c"))

	var seen []int
	cancel := m.Subscribe(func(u *model.User) {
		if u == nil {
			seen = append(seen, 0)
			return
		}
		seen = append(seen, u.ID)
	})
	_ = m.StartSession(ctx, "t2", testUser(4, "c@d.e"))
	cancel()
	_ = m.Logout(ctx)

	if len(seen) != 2 || seen[0] != 3 || seen[1] != 4 {
		t.Fatalf("unexpected deliveries %v", seen)
	}
}

func TestRefreshCurrentUserReplacesUser(t *testing.T) {
	f := &stubFetcher{user: &model.User{ID: 1, Email: "new@b.c", Username: "renamed"}}
	m, _ := newManagerTest(t, f)
	ctx := context.Background()
	_ = m.StartSession(ctx, "t1", testUser(1, "a@b.c"))

	if err := m.RefreshCurrentUser(ctx); err != nil {
		t.Fatalf("RefreshCurrentUser failed: %v", err)
	}
	if m.CurrentUser().Username != "renamed" {
		t.Fatal("expected refreshed user")
	}
	if tok, _ := m.Token(ctx); tok != "t1" {
		t.Fatal("refresh must not touch the token")
	}
}

func TestRefreshCurrentUserKeepsStaleOnFailure(t *testing.T) {
	f := &stubFetcher{err: errors.New("network down")}
	m, _ := newManagerTest(t, f)
	ctx := context.Background()
	_ = m.StartSession(ctx, "t1", testUser(1, "a@b.c"))

	if err := m.RefreshCurrentUser(ctx); err == nil {
		t.Fatal("expected error")
	}
	if m.CurrentUser() == nil || m.State() != StateSignedIn {
		t.Fatal("transient failure must keep the stale user")
	}
}

func TestRefreshCurrentUserInvalidatesOnRejectedToken(t *testing.T) {
	f := &stubFetcher{err: errRejected}
	m, _ := newManagerTest(t, f)
	ctx := context.Background()
	_ = m.StartSession(ctx, "t1", testUser(1, "a@b.c"))

	var reasons []Reason
	m.OnLogout(func(ev Event) { reasons = append(reasons, ev.Reason) })

	_ = m.RefreshCurrentUser(ctx)

	if m.State() != StateSignedOut {
		t.Fatal("rejected token must end the session")
	}
	if len(reasons) != 1 || reasons[0] != ReasonInvalidated {
		t.Fatalf("expected one invalidation, got %v", reasons)
	}

	if err := m.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if len(reasons) != 1 {
		t.Fatal("Invalidate while signed out must be a no-op")
	}
}

func TestRefreshRequiresSession(t *testing.T) {
	m, _ := newManagerTest(t, &stubFetcher{})
	if err := m.RefreshCurrentUser(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
	m2, _ := newManagerTest(t, nil)
	if err := m2.RefreshCurrentUser(context.Background()); !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("expected ErrNoFetcher, got %v", err)
	}
}

func TestRefreshDiscardedAfterSessionChange(t *testing.T) {
	f := &stubFetcher{user: testUser(1, "a@b.c"), gate: make(chan struct{})}
	m, _ := newManagerTest(t, f)
	ctx := context.Background()
	_ = m.StartSession(ctx, "t1", testUser(1, "a@b.c"))

	done := make(chan error, 1)
	go func() { done <- m.RefreshCurrentUser(ctx) }()

	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.calls == 1
	})
	_ = m.Logout(ctx)
	_ = m.StartSession(ctx, "t2", testUser(2, "b@b.c"))
	close(f.gate)

	if err := <-done; !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("expected ErrSessionChanged, got %v", err)
	}
	if m.CurrentUser().ID != 2 {
		t.Fatal("stale refresh must not overwrite the new user")
	}
}

func TestRestoreWithoutToken(t *testing.T) {
	m, _ := newManagerTest(t, &stubFetcher{})
	state, err := m.Restore(context.Background())
	if err != nil || state != StateSignedOut {
		t.Fatalf("expected signed out without error, got %s %v", state, err)
	}
}

func TestRestoreValidatesToken(t *testing.T) {
	f := &stubFetcher{user: testUser(5, "a@b.c"), gate: make(chan struct{})}
	m, ks := newManagerTest(t, f)
	ctx := context.Background()
	_ = ks.Set(ctx, keystore.KeyToken, "stored")

	done := make(chan State, 1)
	go func() {
		s, _ := m.Restore(ctx)
		done <- s
	}()

	waitFor(t, func() bool { return m.State() == StateValidating })
	if m.CurrentUser() != nil {
		t.Fatal("no user may be visible while validating")
	}
	if _, ok := m.UserID(); ok {
		t.Fatal("no user id while validating")
	}
	close(f.gate)

	if s := <-done; s != StateSignedIn {
		t.Fatalf("expected signed in, got %s", s)
	}
	if m.CurrentUser().ID != 5 || !m.IsSameUser("A@B.C") {
		t.Fatal("restored user not applied")
	}
}

func TestRestoreClearsTokenOnFailure(t *testing.T) {
	f := &stubFetcher{err: errors.New("offline")}
	m, ks := newManagerTest(t, f)
	ctx := context.Background()
	_ = ks.Set(ctx, keystore.KeyToken, "stored")

	var reasons []Reason
	m.OnLogout(func(ev Event) { reasons = append(reasons, ev.Reason) })

	state, err := m.Restore(ctx)
	if err == nil || state != StateSignedOut {
		t.Fatalf("expected failure, got %s %v", state, err)
	}
	if _, ok := m.Token(ctx); ok {
		t.Fatal("token should be cleared after failed validation")
	}
	if len(reasons) != 1 || reasons[0] != ReasonRestoreFailed {
		t.Fatalf("expected restore-failed event, got %v", reasons)
	}
}

func TestRestoreDropsExpiredTokenWithoutFetching(t *testing.T) {
	in, err := jwt.NewInspector(jwt.Config{})
	if err != nil {
		t.Fatalf("NewInspector failed: %v", err)
	}
	f := &stubFetcher{user: testUser(1, "a@b.c")}
	ks := keystore.NewMemory()
	m, err := NewManager(Options{Keystore: ks, Fetcher: f, Inspector: in})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	past := time.Now().Add(-48 * time.Hour)
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{
		"id": 1, "iat": past.Unix(), "exp": past.Add(time.Hour).Unix(),
	}).SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ctx := context.Background()
	_ = ks.Set(ctx, keystore.KeyToken, tok)

	if _, err := m.Restore(ctx); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}
	if f.calls != 0 {
		t.Fatal("expired token must not reach the backend")
	}
	if ks.Len() != 0 {
		t.Fatal("expired token should be removed")
	}
}

func TestLogoutDuringRestoreWins(t *testing.T) {
	f := &stubFetcher{user: testUser(5, "a@b.c"), gate: make(chan struct{})}
	m, ks := newManagerTest(t, f)
	ctx := context.Background()
	_ = ks.Set(ctx, keystore.KeyToken, "stored")

	done := make(chan error, 1)
	go func() {
		_, err := m.Restore(ctx)
		done <- err
	}()
	waitFor(t, func() bool { return m.State() == StateValidating })

	_ = m.Logout(ctx)
	close(f.gate)

	if err := <-done; !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("expected ErrSessionChanged, got %v", err)
	}
	if m.State() != StateSignedOut || m.CurrentUser() != nil {
		t.Fatal("logout during restore must stay signed out")
	}
}

// blockingRemoveStore parks every Remove until release is closed.
type blockingRemoveStore struct {
	*keystore.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingRemoveStore) Remove(ctx context.Context, key string) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Memory.Remove(ctx, key)
}

func TestLoginDuringSlowLogoutKeepsTokenAndUserTogether(t *testing.T) {
	ks := &blockingRemoveStore{
		Memory:  keystore.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m, err := NewManager(Options{Keystore: ks})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	ctx := context.Background()
	if err := m.StartSession(ctx, "t1", testUser(1, "one@b.c")); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	logoutDone := make(chan error, 1)
	go func() { logoutDone <- m.Logout(ctx) }()
	<-ks.entered

	loginDone := make(chan error, 1)
	go func() { loginDone <- m.StartSession(ctx, "t2", testUser(2, "two@b.c")) }()

	select {
	case err := <-loginDone:
		t.Fatalf("StartSession finished while logout was still removing the token: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(ks.release)

	if err := <-logoutDone; err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := <-loginDone; err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	tok, ok := m.Token(ctx)
	if !ok || tok != "t2" {
		t.Fatalf("expected token t2, got %q %v", tok, ok)
	}
	if cur := m.CurrentUser(); cur == nil || cur.ID != 2 {
		t.Fatalf("expected user 2, got %+v", cur)
	}
	if m.State() != StateSignedIn {
		t.Fatalf("expected signed_in, got %s", m.State())
	}
}

func TestRestoreAfterLogoutFindsNoToken(t *testing.T) {
	f := &stubFetcher{user: testUser(3, "c@d.e")}
	m, ks := newManagerTest(t, f)
	ctx := context.Background()

	if err := m.StartSession(ctx, "t", testUser(3, "c@d.e")); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	state, err := m.Restore(ctx)
	if err != nil || state != StateSignedOut {
		t.Fatalf("expected signed_out, got %s %v", state, err)
	}
	if ks.Len() != 0 || f.calls != 0 {
		t.Fatal("logout must leave nothing for restore")
	}
}

func TestConcurrentObserversSeeLatestUser(t *testing.T) {
	m, _ := newManagerTest(t, nil)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		last *model.User
	)
	m.Subscribe(func(u *model.User) {
		mu.Lock()
		last = u
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = m.StartSession(ctx, "t", testUser(id, "a@b.c"))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if last == nil || last.ID != m.CurrentUser().ID {
		t.Fatal("observers must end on the latest user")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}
