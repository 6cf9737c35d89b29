package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"campuscal/internal/config"
	appLog "campuscal/internal/log"
	"campuscal/internal/refresh"
	"campuscal/internal/store"
)

// Server exposes the events store and the calendar views over HTTP.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	refresher *refresh.Refresher
	router    *mux.Router
	now       func() time.Time
}

// NewServer wires the routes. The refresher provides the snapshot read by
// the calendar endpoints and is reloaded after every write.
func NewServer(cfg *config.Config, st *store.Store, rf *refresh.Refresher) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		refresher: rf,
		router:    mux.NewRouter(),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, with Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	if s.cfg.BasicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(requestLogger)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/events", s.listEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.createEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/events/{id}", s.getEvent).Methods(http.MethodGet)
	r.HandleFunc("/api/events/{id}", s.updateEvent).Methods(http.MethodPut)
	r.HandleFunc("/api/events/{id}", s.deleteEvent).Methods(http.MethodDelete)
	r.HandleFunc("/api/events/{id}/report", s.reportEvent).Methods(http.MethodPost)

	r.HandleFunc("/api/calendar", s.handleCalendar).Methods(http.MethodGet)
	r.HandleFunc("/api/recurrence", s.previewRecurrence).Methods(http.MethodPost)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/calendar.ics", s.handleICS).Methods(http.MethodGet)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="campuscal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	counts, err := s.store.Counts()
	if err != nil {
		s.internalError(w, "stats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type refreshResponse struct {
	Feeds    int    `json:"feeds"`
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rep := s.refresher.Run(r.Context())
	resp := refreshResponse{Feeds: rep.Feeds, Imported: rep.Imported}
	if rep.Err != nil {
		resp.Error = rep.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// reload refreshes the snapshot after a write. A failure only delays the
// change until the next scheduled refresh.
func (s *Server) reload() {
	if err := s.refresher.Reload(); err != nil {
		appLog.Error("snapshot reload after write failed", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	appLog.Error(msg, err)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
