package goSession

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/keystore"
	"github.com/MrEthical07/goSession/model"
	"github.com/go-chi/chi/v5"
	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type account struct {
	password string
	user     model.User
}

// fakeStrapi is an in-process stand-in for the backend. Tokens are HS256 JWTs
// signed with testSecret and mapped back to users by the server.
type fakeStrapi struct {
	t   testing.TB
	srv *httptest.Server

	mu       sync.Mutex
	accounts map[string]*account // by lowercased email
	tokens   map[string]int
	courses  map[int]model.Course

	revoked     atomic.Bool
	meFails     atomic.Bool
	meCalls     atomic.Int64
	courseCalls atomic.Int64
	// categoryGate, when set, blocks category listings until closed.
	categoryGate atomic.Pointer[chan struct{}]
}

func userWith(id int, email, role string, slugs ...string) model.User {
	ents := make([]model.Entitlement, 0, len(slugs))
	for i, s := range slugs {
		ents = append(ents, model.Entitlement{ID: i + 1, Attributes: model.EntitlementAttributes{Slug: s}})
	}
	return model.User{
		ID:       id,
		Username: strings.Split(email, "@")[0],
		Email:    email,
		Subscription: &model.Relation[model.Subscription]{Data: &model.Subscription{
			ID: id,
			Attributes: model.SubscriptionAttributes{
				Status: "active",
				Plan: model.Plan{ID: 1, Attributes: model.PlanAttributes{
					Name:         role,
					Role:         role,
					Entitlements: &model.ListResponse[model.Entitlement]{Data: ents},
				}},
			},
		}},
	}
}

func newFakeStrapi(t testing.TB) *fakeStrapi {
	t.Helper()
	fs := &fakeStrapi{
		t:        t,
		accounts: map[string]*account{},
		tokens:   map[string]int{},
		courses:  map[int]model.Course{},
	}
	fs.addAccount("ana@example.com", "pw-ana", userWith(7, "ana@example.com", "premium", "ai-assistant", "community-access", "premium-courses"))
	fs.addAccount("ben@example.com", "pw-ben", userWith(8, "ben@example.com", "free"))
	for id := 1; id <= 6; id++ {
		fs.courses[id] = model.Course{
			ID: id,
			Attributes: model.CourseAttributes{
				Title:          "Course " + strconv.Itoa(id),
				CourseCategory: &model.Relation[model.Category]{Data: &model.Category{ID: 1 + id%2}},
			},
		}
	}

	r := chi.NewRouter()
	r.Post("/api/auth/local", fs.login)
	r.Group(func(r chi.Router) {
		r.Use(fs.bearer)
		r.Get("/api/users/me", fs.me)
		r.Get("/api/courses/{id}", fs.course)
		r.Get("/api/courses", fs.listCourses)
	})

	fs.srv = httptest.NewServer(r)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeStrapi) addAccount(email, password string, u model.User) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.accounts[strings.ToLower(email)] = &account{password: password, user: u}
}

func (fs *fakeStrapi) setUser(u model.User) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if a, ok := fs.accounts[strings.ToLower(u.Email)]; ok {
		a.user = u
	}
}

func (fs *fakeStrapi) sign(userID int, ttl time.Duration) string {
	now := time.Now()
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		fs.t.Fatalf("sign token: %v", err)
	}
	fs.mu.Lock()
	fs.tokens[token] = userID
	fs.mu.Unlock()
	return token
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func strapiError(w http.ResponseWriter, status int, name, msg string) {
	reply(w, status, model.ErrorResponse{Error: model.ErrorDetail{Status: status, Name: name, Message: msg}})
}

func (fs *fakeStrapi) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	fs.mu.Lock()
	a, ok := fs.accounts[strings.ToLower(body.Identifier)]
	fs.mu.Unlock()
	if !ok || a.password != body.Password {
		strapiError(w, http.StatusBadRequest, "ValidationError", "Invalid identifier or password")
		return
	}
	reply(w, http.StatusOK, model.AuthResponse{JWT: fs.sign(a.user.ID, time.Hour), User: a.user})
}

func (fs *fakeStrapi) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		fs.mu.Lock()
		_, ok := fs.tokens[token]
		fs.mu.Unlock()
		if !ok || fs.revoked.Load() {
			strapiError(w, http.StatusUnauthorized, "UnauthorizedError", "Missing or invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fs *fakeStrapi) userForRequest(r *http.Request) (model.User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := fs.tokens[token]
	for _, a := range fs.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return model.User{}, false
}

func (fs *fakeStrapi) me(w http.ResponseWriter, r *http.Request) {
	fs.meCalls.Add(1)
	if fs.meFails.Load() {
		strapiError(w, http.StatusInternalServerError, "InternalServerError", "boom")
		return
	}
	u, ok := fs.userForRequest(r)
	if !ok {
		strapiError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	reply(w, http.StatusOK, u)
}

func (fs *fakeStrapi) course(w http.ResponseWriter, r *http.Request) {
	fs.courseCalls.Add(1)
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	fs.mu.Lock()
	c, ok := fs.courses[id]
	fs.mu.Unlock()
	if !ok {
		reply(w, http.StatusNotFound, map[string]any{"data": nil, "error": model.ErrorDetail{Status: 404, Name: "NotFoundError", Message: "Not Found"}})
		return
	}
	reply(w, http.StatusOK, model.SingleResponse[model.Course]{Data: c})
}

func (fs *fakeStrapi) listCourses(w http.ResponseWriter, r *http.Request) {
	if gate := fs.categoryGate.Load(); gate != nil {
		select {
		case <-*gate:
		case <-r.Context().Done():
			return
		}
	}
	q := r.URL.Query()
	category, _ := strconv.Atoi(q.Get("filters[coursecategory][id][$eq]"))
	page, _ := strconv.Atoi(q.Get("pagination[page]"))
	size, _ := strconv.Atoi(q.Get("pagination[pageSize]"))

	fs.mu.Lock()
	var matched []model.Course
	for id := 1; id <= len(fs.courses); id++ {
		if c, ok := fs.courses[id]; ok {
			if cat, ok := c.CategoryID(); ok && cat == category {
				matched = append(matched, c)
			}
		}
	}
	fs.mu.Unlock()

	start := (page - 1) * size
	end := start + size
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	pageCount := (len(matched) + size - 1) / size
	reply(w, http.StatusOK, model.ListResponse[model.Course]{
		Data: matched[start:end],
		Meta: &model.Meta{Pagination: &model.Pagination{Page: page, PageSize: size, PageCount: pageCount, Total: len(matched)}},
	})
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Session.JWTSecret = testSecret
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	return cfg
}

type testEnv struct {
	engine *Engine
	fs     *fakeStrapi
	keys   *keystore.Memory
	sink   *ChannelSink
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	fs := newFakeStrapi(t)
	keys := keystore.NewMemory()
	return newTestEnvWith(t, fs, keys)
}

func newTestEnvWith(t testing.TB, fs *fakeStrapi, keys *keystore.Memory) *testEnv {
	t.Helper()
	sink := NewChannelSink(64)
	engine, err := New().
		WithConfig(testConfig(fs.srv.URL)).
		WithKeystore(keys).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return &testEnv{engine: engine, fs: fs, keys: keys, sink: sink}
}

// nextAudit waits for the next audit event of type typ, skipping others.
func (env *testEnv) nextAudit(t *testing.T, typ string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.sink.Events():
			if ev.EventType == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s audit event", typ)
			return AuditEvent{}
		}
	}
}
