// Package web serves the operator status UI: recent executions, the list of
// actions that still need a manual acknowledgement, health and metrics.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/wodify-ap/internal/auth"
	"github.com/example/wodify-ap/internal/ledger"
	"github.com/example/wodify-ap/internal/metrics"
)

//go:embed templates/*.html static/*
var fs embed.FS

const pageSize = 100

type Server struct {
	Auth    *auth.Store
	Ledger  ledger.Store
	Metrics *metrics.Metrics
	// Health reports whether backing services are reachable.
	Health func(ctx context.Context) error
	Log    zerolog.Logger
}

type tmplData struct {
	Title    string
	Operator string
	Flash    string

	Entries []ledger.Entry
	Empty   string
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/static/", http.FileServer(http.FS(fs)))
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleRecent)))
	mux.Handle("/unacked", s.Auth.RequireAuth(http.HandlerFunc(s.handleUnacked)))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		if err := s.Health(r.Context()); err != nil {
			s.Log.Warn().Err(err).Msg("health check failed")
			http.Error(w, "unavailable\n", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	entries, err := s.Ledger.Recent(r.Context(), pageSize)
	if err != nil {
		s.Log.Error().Err(err).Msg("list executions")
		http.Error(w, "failed to load executions", http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/executions.html", tmplData{
		Title:    "Recent executions",
		Operator: operatorName(r),
		Entries:  entries,
		Empty:    "No events executed yet.",
	})
}

func (s *Server) handleUnacked(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Ledger.Unacknowledged(r.Context(), pageSize)
	if err != nil {
		s.Log.Error().Err(err).Msg("list unacknowledged executions")
		http.Error(w, "failed to load executions", http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/executions.html", tmplData{
		Title:    "Completed but not acknowledged",
		Operator: operatorName(r),
		Entries:  entries,
		Empty:    "Nothing to reconcile.",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(r.FormValue("username"))
		op, err := s.Auth.Authenticate(r.Context(), username, r.FormValue("password"))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				s.Log.Error().Err(err).Msg("authenticate operator")
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
			return
		}
		if err := s.Auth.SetSession(w, r, op); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.Log.Info().Str("operator", op.Username).Msg("operator logged in")
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func operatorName(r *http.Request) string {
	op, _ := auth.OperatorFromContext(r.Context())
	return op.Username
}

var funcs = template.FuncMap{
	"when": func(t any) string {
		switch v := t.(type) {
		case time.Time:
			if v.IsZero() {
				return "-"
			}
			return v.Format("2006-01-02 15:04:05")
		case *time.Time:
			if v == nil || v.IsZero() {
				return "-"
			}
			return v.Format("2006-01-02 15:04:05.000")
		}
		return "-"
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.New("").Funcs(funcs).ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.Log.Error().Err(err).Str("template", name).Msg("render")
	}
}

func Start(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("status ui listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
