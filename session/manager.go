package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/keystore"
	"github.com/MrEthical07/goSession/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a Manager. Keystore is required.
type Options struct {
	Keystore keystore.Store
	// Fetcher loads the user for the stored token. Restore and
	// RefreshCurrentUser fail with ErrNoFetcher without it.
	Fetcher UserFetcher
	// Inspector, when set, lets Restore drop an expired token without
	// calling the backend.
	Inspector *jwt.Inspector
	// IsUnauthorized classifies fetch errors that mean the backend rejected
	// the token.
	IsUnauthorized func(error) bool
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Manager is the single source of truth for the bearer token and the current
// user. It is safe for concurrent use.
//
// Observers run synchronously on the goroutine that changed the session and
// must not call mutating Manager methods themselves.
type Manager struct {
	store          keystore.Store
	fetcher        UserFetcher
	inspector      *jwt.Inspector
	isUnauthorized func(error) bool
	log            zerolog.Logger
	now            func() time.Time

	// opMu serializes lifecycle changes so the keystore token and the
	// in-memory session always move together. It is never held across a
	// backend call.
	opMu sync.Mutex

	mu        sync.RWMutex
	state     State
	user      *model.User
	lastEmail string
	sessionID string
	since     time.Time
	version   uint64

	obsMu     sync.Mutex
	nextObsID int
	userObs   []userObserver
	logoutObs []logoutObserver

	// notifyMu serializes delivery; delivered is the newest version handed
	// to user observers so a slow publisher never regresses them.
	notifyMu  sync.Mutex
	delivered uint64
}

type userObserver struct {
	id int
	fn func(*model.User)
}

type logoutObserver struct {
	id int
	fn func(Event)
}

// NewManager builds a signed-out Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Keystore == nil {
		return nil, errors.New("session manager requires a keystore")
	}
	if opts.IsUnauthorized == nil {
		opts.IsUnauthorized = func(error) bool { return false }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:          opts.Keystore,
		fetcher:        opts.Fetcher,
		inspector:      opts.Inspector,
		isUnauthorized: opts.IsUnauthorized,
		log:            opts.Logger.With().Str("component", "session").Logger(),
		now:            opts.Now,
	}, nil
}

// StartSession records a successful login: the token is persisted, the user
// becomes current and its email becomes the last known email.
//
// A keystore failure is returned, but the in-memory session is still
// established so the running process stays signed in.
func (m *Manager) StartSession(ctx context.Context, token string, user *model.User) error {
	if token == "" || user == nil {
		return ErrInvalidSession
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	storeErr := m.store.Set(ctx, keystore.KeyToken, token)

	m.mu.Lock()
	m.user = user.Clone()
	m.lastEmail = user.Email
	m.state = StateSignedIn
	m.sessionID = uuid.NewString()
	m.since = m.now()
	m.version++
	v, u := m.version, m.user
	m.mu.Unlock()

	m.deliver(v, u, nil)

	if storeErr != nil {
		m.log.Warn().Err(storeErr).Int("user_id", user.ID).Msg("token not persisted; session is memory-only")
		return fmt.Errorf("persist token: %w", storeErr)
	}
	m.log.Debug().Int("user_id", user.ID).Msg("session started")
	return nil
}

// Logout clears the session and broadcasts ReasonLogout to logout observers.
// The broadcast happens even when no session was active.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.end(ctx, ReasonLogout, true)
}

// ClearSession removes the token, the current user and the last known email
// without broadcasting a logout event.
func (m *Manager) ClearSession(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.end(ctx, ReasonLogout, false)
}

// Invalidate ends the session because the backend rejected its token.
// It is a no-op when already signed out, so several rejected in-flight
// requests produce one event.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state == StateSignedOut {
		return nil
	}
	m.log.Warn().Msg("session invalidated by backend")
	return m.end(ctx, ReasonInvalidated, true)
}

// end must be called with opMu held.
func (m *Manager) end(ctx context.Context, reason Reason, broadcast bool) error {
	storeErr := m.store.Remove(ctx, keystore.KeyToken)

	m.mu.Lock()
	ev := Event{Reason: reason, SessionID: m.sessionID, At: m.now()}
	if m.user != nil {
		ev.UserID = m.user.ID
	}
	m.user = nil
	m.lastEmail = ""
	m.state = StateSignedOut
	m.sessionID = ""
	m.since = time.Time{}
	m.version++
	v := m.version
	m.mu.Unlock()

	if broadcast {
		m.deliver(v, nil, &ev)
	} else {
		m.deliver(v, nil, nil)
	}

	if storeErr != nil {
		m.log.Warn().Err(storeErr).Msg("token not removed from keystore")
		return fmt.Errorf("remove token: %w", storeErr)
	}
	return nil
}

// Token returns the stored bearer token. A keystore failure is logged and
// reported as absent.
func (m *Manager) Token(ctx context.Context) (string, bool) {
	token, ok, err := m.store.Get(ctx, keystore.KeyToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("token lookup failed")
		return "", false
	}
	if token == "" {
		return "", false
	}
	return token, ok
}

// CurrentUser returns the signed-in user or nil. The returned value is shared
// and must not be modified.
func (m *Manager) CurrentUser() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// UserID returns the current user's id.
func (m *Manager) UserID() (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return 0, false
	}
	return m.user.ID, true
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{State: m.state, SessionID: m.sessionID, Email: m.lastEmail, Since: m.since}
	if m.user != nil {
		info.UserID = m.user.ID
	}
	return info
}

// IsSameUser reports whether email matches the last session's email, ignoring
// case. It is false when no email is known.
func (m *Manager) IsSameUser(email string) bool {
	m.mu.RLock()
	last := m.lastEmail
	m.mu.RUnlock()

	email = strings.TrimSpace(email)
	if last == "" || email == "" {
		return false
	}
	return strings.EqualFold(last, email)
}

// RefreshCurrentUser refetches the user and replaces the current one. On
// failure the stale user is kept and the error is logged and returned; a
// rejected token additionally invalidates the session.
func (m *Manager) RefreshCurrentUser(ctx context.Context) error {
	m.mu.RLock()
	fetcher, state, sid := m.fetcher, m.state, m.sessionID
	m.mu.RUnlock()

	if fetcher == nil {
		return ErrNoFetcher
	}
	if state != StateSignedIn {
		return ErrNotSignedIn
	}

	u, err := fetcher.FetchCurrentUser(ctx)
	if err == nil && u == nil {
		err = errors.New("backend returned no user")
	}
	if err != nil {
		if m.isUnauthorized(err) {
			if m.currentSession() == sid {
				_ = m.Invalidate(ctx)
			}
			return err
		}
		if ctx.Err() != nil {
			m.log.Debug().Err(err).Msg("user refresh cancelled")
			return err
		}
		m.log.Warn().Err(err).Msg("user refresh failed; keeping cached user")
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.sessionID != sid {
		m.mu.Unlock()
		return ErrSessionChanged
	}
	m.user = u.Clone()
	m.lastEmail = u.Email
	m.version++
	v, cur := m.version, m.user
	m.mu.Unlock()

	m.deliver(v, cur, nil)
	return nil
}

// Restore turns a token left in the keystore by a previous process into a
// session. It returns StateSignedOut with a nil error when there is no token.
//
// While the user is being fetched the Manager reports StateValidating and
// CurrentUser is nil. An expired token, or any failure to fetch the user,
// clears the token and broadcasts ReasonRestoreFailed.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	m.mu.RLock()
	state, fetcher := m.state, m.fetcher
	m.mu.RUnlock()
	if state != StateSignedOut {
		return state, nil
	}
	if fetcher == nil {
		return StateSignedOut, ErrNoFetcher
	}

	token, sid, state, err := m.beginRestore(ctx)
	if err != nil || token == "" {
		return state, err
	}

	if m.inspector != nil {
		if _, err := m.inspector.Inspect(token); err != nil {
			m.log.Info().Err(err).Msg("stored token rejected locally")
			m.failRestore(ctx, sid)
			return StateSignedOut, err
		}
	}

	u, err := fetcher.FetchCurrentUser(ctx)
	if err == nil && u == nil {
		err = errors.New("backend returned no user")
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("stored token could not be validated")
		m.failRestore(ctx, sid)
		return StateSignedOut, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.sessionID != sid {
		state := m.state
		m.mu.Unlock()
		return state, ErrSessionChanged
	}
	m.user = u.Clone()
	m.lastEmail = u.Email
	m.state = StateSignedIn
	m.since = m.now()
	m.version++
	v, cur := m.version, m.user
	m.mu.Unlock()

	m.deliver(v, cur, nil)
	m.log.Debug().Int("user_id", u.ID).Msg("session restored")
	return StateSignedIn, nil
}

// beginRestore reads the stored token and moves to StateValidating in one
// step. An empty token means there is nothing to restore.
func (m *Manager) beginRestore(ctx context.Context) (token, sid string, state State, err error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if state := m.State(); state != StateSignedOut {
		return "", "", state, nil
	}
	token, ok, err := m.store.Get(ctx, keystore.KeyToken)
	if err != nil {
		return "", "", StateSignedOut, err
	}
	if !ok || token == "" {
		return "", "", StateSignedOut, nil
	}

	sid = uuid.NewString()
	m.mu.Lock()
	m.state = StateValidating
	m.sessionID = sid
	m.mu.Unlock()
	return token, sid, StateValidating, nil
}

func (m *Manager) failRestore(ctx context.Context, sid string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.currentSession() != sid {
		return
	}
	_ = m.end(ctx, ReasonRestoreFailed, true)
}

func (m *Manager) currentSession() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// Subscribe registers fn for every change of the current user and calls it
// once immediately with the current value. fn receives nil on sign-out.
func (m *Manager) Subscribe(fn func(*model.User)) (cancel func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.obsMu.Lock()
	m.nextObsID++
	id := m.nextObsID
	m.userObs = append(m.userObs, userObserver{id: id, fn: fn})
	m.obsMu.Unlock()

	fn(m.CurrentUser())

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, o := range m.userObs {
			if o.id == id {
				m.userObs = append(m.userObs[:i:i], m.userObs[i+1:]...)
				return
			}
		}
	}
}

// OnLogout registers fn for session-ending events (logout, invalidation,
// failed restore).
func (m *Manager) OnLogout(fn func(Event)) (cancel func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	m.nextObsID++
	id := m.nextObsID
	m.logoutObs = append(m.logoutObs, logoutObserver{id: id, fn: fn})

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, o := range m.logoutObs {
			if o.id == id {
				m.logoutObs = append(m.logoutObs[:i:i], m.logoutObs[i+1:]...)
				return
			}
		}
	}
}

// deliver publishes user version v and then, if ev is set, the logout event.
// User observers always see the cleared user before logout observers run.
func (m *Manager) deliver(v uint64, u *model.User, ev *Event) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.obsMu.Lock()
	users := append([]userObserver(nil), m.userObs...)
	logouts := append([]logoutObserver(nil), m.logoutObs...)
	m.obsMu.Unlock()

	if v > m.delivered {
		m.delivered = v
		for _, o := range users {
			o.fn(u)
		}
	}
	if ev != nil {
		for _, o := range logouts {
			o.fn(*ev)
		}
	}
}
