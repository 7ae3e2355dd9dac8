package goSession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/coursecache"
	"github.com/MrEthical07/goSession/internal/latest"
	"github.com/MrEthical07/goSession/keystore"
	"github.com/MrEthical07/goSession/model"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/sessionstore"
	"github.com/MrEthical07/goSession/strapi"
	"github.com/rs/zerolog"
)

// Session store keys owned by the Engine.
var (
	// KeyUser holds the last user object seen for each user id.
	KeyUser = sessionstore.NewKey[*model.User]("user")
	// KeyCoursesByCategory holds category listings by category id.
	KeyCoursesByCategory = sessionstore.NewKey[map[int][]model.Course]("coursesByCategoryID")
)

// ErrSuperseded is returned by fetches replaced by a newer request for the
// same data. Callers should drop it silently.
var ErrSuperseded = latest.ErrSuperseded

// IsSuperseded reports whether err is ErrSuperseded.
func IsSuperseded(err error) bool {
	return latest.IsSuperseded(err)
}

// Engine owns one of each session service and the wiring between them.
// Methods are safe for concurrent use.
type Engine struct {
	config   Config
	log      zerolog.Logger
	keystore keystore.Store
	closers  []io.Closer

	backend     *strapi.Client
	session     *session.Manager
	store       *sessionstore.Store
	permissions *permission.Manager
	courses     *coursecache.Cache
	refresh     *refresh.Coordinator
	fetches     latest.Group

	metrics *Metrics
	audit   *auditDispatcher

	unsubscribe []func()
	closed      atomic.Bool
	closeOnce   sync.Once
}

func (e *Engine) ready() bool {
	return e != nil && !e.closed.Load()
}

// Login authenticates against the backend and starts a session for the
// returned user. Any current session is cleared before the attempt, and a
// failed attempt leaves the engine signed out. Signing in as a different
// user than the previous one drops that user's cached data.
//
// A token that cannot be persisted is logged; the session still starts and
// lasts for the life of the process.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*model.User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	prev := e.session.CurrentUser()
	e.clearForLogin(ctx)

	start := time.Now()
	auth, err := e.backend.Login(ctx, identifier, password)
	e.metrics.Observe(MetricFetchLatency, time.Since(start))
	if err == nil && auth.JWT == "" {
		err = fmt.Errorf("%w: login response carried no token", ErrBackendUnavailable)
	}
	if err != nil {
		err = mapLoginError(err)
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLoginFailure, Error: err.Error()})
		e.log.Debug().Err(err).Str("identifier", identifier).Msg("login failed")
		e.clearForLogin(ctx)
		if prev != nil {
			e.store.ClearUser(prev.ID)
		}
		return nil, err
	}

	if prev != nil && !strings.EqualFold(prev.Email, strings.TrimSpace(auth.User.Email)) {
		e.store.ClearUser(prev.ID)
	}

	user := auth.User
	if err := e.session.StartSession(ctx, auth.JWT, &user); err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			e.metrics.Inc(MetricLoginFailure)
			if prev != nil {
				e.store.ClearUser(prev.ID)
			}
			return nil, err
		}
		e.log.Warn().Err(err).Msg("login token kept in memory only")
	}

	info := e.session.Info()
	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLoginSuccess,
		UserID:    info.UserID,
		SessionID: info.SessionID,
		Success:   true,
	})
	return e.session.CurrentUser(), nil
}

// Restore brings back the session persisted by a previous run. See
// session.Manager.Restore for the state machine.
func (e *Engine) Restore(ctx context.Context) (session.State, error) {
	if !e.ready() {
		return session.StateSignedOut, ErrEngineNotReady
	}

	start := time.Now()
	state, err := e.session.Restore(ctx)
	e.metrics.Observe(MetricFetchLatency, time.Since(start))
	if err != nil {
		return state, mapBackendError(err)
	}
	if state == session.StateSignedIn {
		info := e.session.Info()
		e.metrics.Inc(MetricSessionRestored)
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditSessionRestored,
			UserID:    info.UserID,
			SessionID: info.SessionID,
			Success:   true,
		})
	}
	return state, nil
}

// Logout ends the session. Cached per-user data is dropped by the logout
// observers, and the session's audit events are handed to the sink, before
// Logout returns.
func (e *Engine) Logout(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	err := e.session.Logout(ctx)
	if ferr := e.audit.Flush(ctx); ferr != nil {
		e.log.Debug().Err(ferr).Msg("audit flush interrupted")
	}
	return err
}

// RefreshUser refetches the current user. On failure the previous user
// stays current; a rejected token ends the session and returns
// ErrSessionInvalidated.
func (e *Engine) RefreshUser(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	err := e.fetches.Do(ctx, "user", func(ctx context.Context) error {
		start := time.Now()
		err := e.session.RefreshCurrentUser(ctx)
		e.metrics.Observe(MetricFetchLatency, time.Since(start))
		return err
	})
	info := e.session.Info()
	switch {
	case err == nil:
		e.metrics.Inc(MetricUserRefreshSuccess)
		e.emitAudit(ctx, AuditEvent{EventType: AuditUserRefreshed, UserID: info.UserID, SessionID: info.SessionID, Success: true})
		return nil
	case latest.IsSuperseded(err), errors.Is(err, session.ErrSessionChanged):
		e.metrics.Inc(MetricFetchSuperseded)
		e.log.Debug().Msg("user refresh superseded")
		return ErrSuperseded
	case errors.Is(err, session.ErrNotSignedIn):
		return ErrNotSignedIn
	}

	e.metrics.Inc(MetricUserRefreshFailure)
	e.emitAudit(ctx, AuditEvent{EventType: AuditUserRefreshFailed, UserID: info.UserID, SessionID: info.SessionID, Error: err.Error()})
	return mapBackendError(err)
}

// CurrentUser returns the signed-in user, or nil.
func (e *Engine) CurrentUser() *model.User {
	if !e.ready() {
		return nil
	}
	return e.session.CurrentUser()
}

// CanAccess reports whether the current user holds p.
func (e *Engine) CanAccess(p permission.Permission) bool {
	if !e.ready() {
		return false
	}
	ok := e.permissions.CanAccess(p)
	if ok {
		e.metrics.Inc(MetricPermissionGranted)
	} else {
		e.metrics.Inc(MetricPermissionDenied)
	}
	return ok
}

func (e *Engine) fetchCourse(ctx context.Context, id int) (model.Course, error) {
	start := time.Now()
	c, err := e.backend.FetchCourse(ctx, id)
	e.metrics.Observe(MetricFetchLatency, time.Since(start))
	return c, err
}

// Course returns a course, from the cache unless forceRefresh is set. A
// forced refresh replaces the cached copy on success and leaves it alone on
// failure.
func (e *Engine) Course(ctx context.Context, courseID int, forceRefresh bool) (model.Course, error) {
	if !e.ready() {
		return model.Course{}, ErrEngineNotReady
	}

	if !forceRefresh {
		c, err := e.courses.GetOrFetch(ctx, courseID, e.fetchCourse)
		if err != nil {
			e.metrics.Inc(MetricCourseFetchFailure)
			return model.Course{}, mapCourseError(err)
		}
		return c, nil
	}

	uid, signedIn := e.session.UserID()
	c, err := latest.Run(ctx, e.fetches.Runner("course:"+strconv.Itoa(courseID)), func(ctx context.Context) (model.Course, error) {
		return e.fetchCourse(ctx, courseID)
	})
	if latest.IsSuperseded(err) {
		e.metrics.Inc(MetricFetchSuperseded)
		return model.Course{}, ErrSuperseded
	}
	if err != nil {
		e.metrics.Inc(MetricCourseFetchFailure)
		return model.Course{}, mapCourseError(err)
	}
	if now, ok := e.session.UserID(); signedIn && ok && now == uid {
		e.courses.Set(c)
	}
	return c, nil
}

// PrefetchCourses warms the course cache with Cache.PrefetchConcurrency
// fetches in flight.
func (e *Engine) PrefetchCourses(ctx context.Context, ids []int) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	err := e.courses.Prefetch(ctx, ids, e.fetchCourse, e.config.Cache.PrefetchConcurrency)
	if errors.Is(err, coursecache.ErrNoUser) {
		return ErrNotSignedIn
	}
	if err != nil {
		e.metrics.Inc(MetricCourseFetchFailure)
		return mapCourseError(err)
	}
	return nil
}

// CoursesForCategory returns every course in a category. Results are kept
// per user; a newer call for the same category supersedes an older one.
func (e *Engine) CoursesForCategory(ctx context.Context, categoryID int, forceRefresh bool) ([]model.Course, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	uid, signedIn := e.session.UserID()
	if signedIn && !forceRefresh {
		if byCategory, ok := sessionstore.GetUser(e.store, KeyCoursesByCategory, uid); ok {
			if courses, ok := byCategory[categoryID]; ok {
				return courses, nil
			}
		}
	}

	courses, err := latest.Run(ctx, e.fetches.Runner("category:"+strconv.Itoa(categoryID)), func(ctx context.Context) ([]model.Course, error) {
		start := time.Now()
		cs, err := e.backend.FetchAllCoursesForCategory(ctx, categoryID)
		e.metrics.Observe(MetricFetchLatency, time.Since(start))
		return cs, err
	})
	if latest.IsSuperseded(err) {
		e.metrics.Inc(MetricFetchSuperseded)
		e.log.Debug().Int("category_id", categoryID).Msg("category fetch superseded")
		return nil, ErrSuperseded
	}
	if err != nil {
		e.metrics.Inc(MetricCourseFetchFailure)
		e.log.Warn().Err(err).Int("category_id", categoryID).Msg("category fetch failed")
		return nil, mapBackendError(err)
	}

	if now, ok := e.session.UserID(); signedIn && ok && now == uid {
		sessionstore.UpdateUser(e.store, KeyCoursesByCategory, uid, func(cur map[int][]model.Course, _ bool) map[int][]model.Course {
			next := make(map[int][]model.Course, len(cur)+1)
			for id, v := range cur {
				next[id] = v
			}
			next[categoryID] = courses
			return next
		})
	}
	return courses, nil
}

// CoursesPage fetches one page of a category's courses, Cache.PageSize
// courses per page. Pages are not cached.
func (e *Engine) CoursesPage(ctx context.Context, categoryID, page int) (model.ListResponse[model.Course], error) {
	if !e.ready() {
		return model.ListResponse[model.Course]{}, ErrEngineNotReady
	}
	if page < 1 {
		page = 1
	}

	start := time.Now()
	resp, err := e.backend.FetchCoursesForCategory(ctx, categoryID, page, e.config.Cache.PageSize)
	e.metrics.Observe(MetricFetchLatency, time.Since(start))
	if err != nil {
		e.metrics.Inc(MetricCourseFetchFailure)
		return model.ListResponse[model.Course]{}, mapBackendError(err)
	}
	return resp, nil
}

// clearForLogin drops the token and current user without a logout event.
func (e *Engine) clearForLogin(ctx context.Context) {
	if err := e.session.ClearSession(ctx); err != nil {
		e.log.Warn().Err(err).Msg("previous session not fully cleared")
	}
}

func (e *Engine) onUserChanged(u *model.User) {
	if u != nil {
		sessionstore.SetUser(e.store, KeyUser, u.ID, u)
	}
}

func (e *Engine) onSessionEnded(ev session.Event) {
	e.courses.Reset()
	e.store.ClearAll()

	audit := AuditEvent{UserID: ev.UserID, SessionID: ev.SessionID, Timestamp: ev.At}
	switch ev.Reason {
	case session.ReasonInvalidated:
		e.metrics.Inc(MetricSessionInvalidated)
		audit.EventType = AuditSessionInvalidated
	case session.ReasonRestoreFailed:
		e.metrics.Inc(MetricRestoreFailed)
		audit.EventType = AuditRestoreFailed
	default:
		e.metrics.Inc(MetricLogout)
		audit.EventType = AuditLogout
		audit.Success = true
	}
	e.emitAudit(context.Background(), audit)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string, 1)
		}
		event.Metadata["user_agent"] = ua
	}
	e.audit.Emit(ctx, event)
}

// Session returns the session manager.
func (e *Engine) Session() *session.Manager { return e.session }

// Store returns the per-user session store.
func (e *Engine) Store() *sessionstore.Store { return e.store }

func (e *Engine) Permissions() *permission.Manager { return e.permissions }

func (e *Engine) Courses() *coursecache.Cache { return e.courses }

// Refresh returns the refresh coordinator shared by every screen.
func (e *Engine) Refresh() *refresh.Coordinator { return e.refresh }

// Backend returns the Strapi client for endpoints the Engine does not wrap.
func (e *Engine) Backend() *strapi.Client { return e.backend }

// MetricsSnapshot returns a copy of the Engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close detaches observers, cancels in-flight fetches, flushes audit and
// closes the keystore if Build opened it. The session itself is left intact
// so the token survives for the next Restore.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		for _, cancel := range e.unsubscribe {
			cancel()
		}
		e.permissions.Detach()
		e.fetches.CancelAll()
		e.audit.Close()
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
