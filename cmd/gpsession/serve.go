package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/permission"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func newRouter(engine *goSession.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := goSession.WithUserAgent(goSession.WithClientIP(r.Context(), r.RemoteAddr), r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})

	r.Handle("/metrics", prometheus.NewCollector(engine).Handler())

	r.With(middleware.RequireSession(engine)).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		u, _ := middleware.UserFromContext(r.Context())
		writeJSON(w, http.StatusOK, u)
	})
	r.With(middleware.RequireSession(engine)).Get("/permissions", func(w http.ResponseWriter, r *http.Request) {
		granted := engine.Permissions().Granted()
		names := make([]string, 0, len(granted))
		for _, p := range granted {
			names = append(names, p.String())
		}
		writeJSON(w, http.StatusOK, names)
	})
	r.With(middleware.RequirePermission(engine, permission.AccessPremiumCourses)).Get("/courses/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		c, err := engine.Course(r.Context(), id, r.URL.Query().Get("refresh") == "1")
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goSession.ErrCourseNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, goSession.ErrSessionInvalidated), errors.Is(err, goSession.ErrNotSignedIn):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case goSession.IsSuperseded(err):
		http.Error(w, "superseded", http.StatusConflict)
	default:
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
}

func serve(ctx context.Context, engine *goSession.Engine, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(engine),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
