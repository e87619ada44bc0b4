// Package server exposes an opened storage engine over HTTP: a REST-style
// key-value API, a read-only GraphQL API, and a websocket change feed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/adrienschuler/storage-engine/pkg/engine"
	"github.com/adrienschuler/storage-engine/pkg/queryapi"
)

// Server binds one opened engine to an HTTP router.
type Server struct {
	config    *Config
	eng       engine.Engine
	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time
	feed      *ChangeFeed
	auth      *Authenticator
}

// New opens the engine named in config and builds the router around it.
func New(config *Config) (*Server, error) {
	eng, err := engine.Open(config.EngineName, config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	s := &Server{
		config:    config,
		eng:       eng,
		router:    chi.NewRouter(),
		startTime: time.Now(),
		feed:      NewChangeFeed(),
	}

	if config.AuthPassphrase != "" {
		a, err := NewAuthenticator(config.AuthPassphrase)
		if err != nil {
			return nil, err
		}
		s.auth = a
	}

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() error {
	s.router.Get("/_health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Handle("/ws/changes", http.HandlerFunc(s.feed.ServeHTTP))

	kv := chi.NewRouter()
	if s.auth != nil {
		kv.Use(s.auth.Middleware)
	}
	kv.Get("/fuzzy", s.handleFuzzy)
	kv.Put("/{key}", s.handlePut)
	kv.Get("/{key}", s.handleGet)
	kv.Delete("/{key}", s.handleDelete)
	s.router.Mount("/kv", kv)

	compact := chi.NewRouter()
	if s.auth != nil {
		compact.Use(s.auth.Middleware)
	}
	compact.Post("/", s.handleCompact)
	s.router.Mount("/compact", compact)

	gql, err := queryapi.NewHandler(s.eng)
	if err != nil {
		return fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	s.router.Post("/graphql", gql.ServeHTTP)

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"engine": s.config.EngineName,
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.eng.(engine.StatsProvider)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"engine": s.config.EngineName})
		return
	}
	stats := provider.Stats()
	stats["engine"] = s.config.EngineName
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	value := string(body)

	if err := s.eng.Put(key, value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.feed.Broadcast(ChangeEvent{Op: "put", Key: key, Value: value})
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, found, err := s.eng.Get(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "value": value})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.eng.Delete(key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.feed.Broadcast(ChangeEvent{Op: "delete", Key: key})
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleFuzzy(w http.ResponseWriter, r *http.Request) {
	fuzzy, ok := s.eng.(engine.FuzzyEngine)
	if !ok {
		writeError(w, http.StatusBadRequest, "fuzzy lookup is only supported by the lsm engine")
		return
	}

	query := r.URL.Query().Get("q")
	maxDistance, err := strconv.Atoi(r.URL.Query().Get("d"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "d must be an integer edit distance")
		return
	}

	matches, err := fuzzy.FuzzyGet(query, maxDistance)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	fuzzy, ok := s.eng.(engine.FuzzyEngine)
	if !ok {
		writeError(w, http.StatusBadRequest, "compaction is only supported by the lsm engine")
		return
	}
	if err := fuzzy.Compact(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}

// Start runs the HTTP server until it errors or the process receives an
// interrupt or SIGTERM, at which point it shuts down gracefully.
func (s *Server) Start() error {
	fmt.Fprintf(os.Stderr, "storage-engine listening on %s (engine=%s, data=%s)\n",
		s.httpSrv.Addr, s.config.EngineName, s.config.DataDir)
	if s.auth != nil {
		fmt.Fprintf(os.Stderr, "auth enabled, bearer token: %s\n", s.auth.Token())
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests, disconnects websocket clients, and
// closes the underlying engine.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server shutdown error: %v\n", err)
	}
	s.feed.Close()
	return s.eng.Close()
}
