package goSession_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/model"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/sessionstore"
)

// Guards the exported surface consumers build against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = goSession.New
	_ = goSession.DefaultConfig
	_ = goSession.ConfigFromEnv

	var _ *goSession.Engine
	var _ goSession.Config
	var _ goSession.AuditSink = goSession.NoOpSink{}
	var _ middleware.Engine = (*goSession.Engine)(nil)

	var _ error = goSession.ErrNotSignedIn
	var _ error = goSession.ErrInvalidCredentials
	var _ error = goSession.ErrSessionInvalidated
	var _ error = goSession.ErrBackendUnavailable
	var _ error = goSession.ErrCourseNotFound
	var _ error = goSession.ErrSuperseded

	var _ func(middleware.Engine, permission.Permission) func(http.Handler) http.Handler = middleware.RequirePermission

	var _ func(*goSession.Engine, context.Context, string, string) (*model.User, error) = (*goSession.Engine).Login
	var _ func(*goSession.Engine, context.Context) (session.State, error) = (*goSession.Engine).Restore
	var _ func(*goSession.Engine, context.Context) error = (*goSession.Engine).Logout
	var _ func(*goSession.Engine, context.Context) error = (*goSession.Engine).RefreshUser
	var _ func(*goSession.Engine, permission.Permission) bool = (*goSession.Engine).CanAccess
	var _ func(*goSession.Engine, context.Context, int, bool) (model.Course, error) = (*goSession.Engine).Course
	var _ func(*goSession.Engine, context.Context, int, bool) ([]model.Course, error) = (*goSession.Engine).CoursesForCategory
}

func ExampleNew() {
	cfg := goSession.DefaultConfig()
	cfg.API.BaseURL = "https://cms.example.com"
	cfg.Keystore.Backend = goSession.KeystoreSQLite
	cfg.Keystore.Path = "tokens.db"

	engine, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()

	if state, err := engine.Restore(context.Background()); err == nil && state == session.StateSignedIn {
		fmt.Println("welcome back", engine.CurrentUser().Username)
	}
}

func ExampleEngine_Login() {
	var engine *goSession.Engine
	_, err := engine.Login(context.Background(), "ana@example.com", "password")
	switch {
	case errors.Is(err, goSession.ErrInvalidCredentials):
		fmt.Println("wrong email or password")
	case errors.Is(err, goSession.ErrBackendUnavailable):
		fmt.Println("try again later")
	}
}

func ExampleEngine_CanAccess() {
	var engine *goSession.Engine
	if engine.CanAccess(permission.UseAIChat) {
		fmt.Println("show chat")
	}
}

// Per-user values live under typed keys and vanish on logout.
func ExampleEngine_Store() {
	var engine *goSession.Engine
	drafts := sessionstore.NewKey[string]("commentDraft")

	if u := engine.CurrentUser(); u != nil {
		sessionstore.SetUser(engine.Store(), drafts, u.ID, "half a thought")
	}
}
