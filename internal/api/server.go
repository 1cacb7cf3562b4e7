// Package api provides the local HTTP API server for codexmux.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codexmux/codexmux/internal/refresh"
	"github.com/codexmux/codexmux/internal/store"
	"github.com/codexmux/codexmux/internal/usage"
)

// providerTimeout bounds each outbound provider call made on behalf of one
// request. No retry is performed; timeouts surface as provider errors.
const providerTimeout = 60 * time.Second

// Server is the local HTTP API server.
type Server struct {
	port       int
	token      string
	tokenPath  string
	logger     *slog.Logger
	httpServer *http.Server
	handlers   *Handlers

	// SSE clients for live updates
	sseClients   map[chan Event]struct{}
	sseMu        sync.RWMutex
	eventCh      chan Event
	shutdownOnce sync.Once
}

// Config holds server configuration.
type Config struct {
	Port      int
	TokenPath string
	Logger    *slog.Logger
}

// NewServer creates a new API server and loads or generates its bearer token.
func NewServer(cfg Config, handlers *Handlers) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		port:       cfg.Port,
		tokenPath:  cfg.TokenPath,
		logger:     cfg.Logger,
		handlers:   handlers,
		sseClients: make(map[chan Event]struct{}),
		eventCh:    make(chan Event, 100),
	}

	token, err := s.loadOrGenerateToken()
	if err != nil {
		return nil, fmt.Errorf("token setup: %w", err)
	}
	s.token = token

	return s, nil
}

// loadOrGenerateToken loads an existing token or generates a new one.
func (s *Server) loadOrGenerateToken() (string, error) {
	if err := os.MkdirAll(dirOf(s.tokenPath), 0700); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.tokenPath)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := os.WriteFile(s.tokenPath, []byte(token), 0600); err != nil {
		return "", err
	}
	return token, nil
}

func dirOf(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx > 0 {
		return path[:idx]
	}
	return "."
}

// Token returns the API authentication token.
func (s *Server) Token() string {
	return s.token
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the fully wired route handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/auth", s.authMiddleware(s.handleList))
	mux.HandleFunc("/auth/", s.authMiddleware(s.handleAuthTree))
	mux.HandleFunc("/refresh-token/", s.authMiddleware(s.handleLegacyRefresh))
	mux.HandleFunc("/events", s.authMiddleware(s.handleSSE))

	return s.corsMiddleware(mux)
}

// Start starts the server, binding to localhost only.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.broadcastEvents()

	s.logger.Info("API server starting", "addr", addr)
	return s.httpServer.Serve(listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.eventCh)
	})
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Emit sends an event to all SSE clients.
func (s *Server) Emit(eventType string, data any) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	select {
	case s.eventCh <- event:
	default:
		s.logger.Warn("event channel full, dropping event", "type", eventType)
	}
}

// broadcastEvents sends events to all SSE clients.
func (s *Server) broadcastEvents() {
	for event := range s.eventCh {
		s.sseMu.RLock()
		for clientCh := range s.sseClients {
			select {
			case clientCh <- event:
			default:
				// Client slow, skip
			}
		}
		s.sseMu.RUnlock()
	}
}

// corsMiddleware adds CORS headers for localhost origins only.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"http://localhost",
			"http://127.0.0.1",
		}

		allowed := false
		for _, ao := range allowedOrigins {
			if origin == ao || strings.HasPrefix(origin, ao+":") {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates the bearer token.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			s.jsonError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			s.jsonError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		if auth[len(prefix):] != s.token {
			s.jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r)
	}
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		s.logger.Error("json encode failed", "error", err)
	}
}

// operationError maps a domain error to its HTTP status and response body.
func (s *Server) operationError(w http.ResponseWriter, err error) {
	var rejected *refresh.TokenRejectedError
	if errors.As(err, &rejected) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{
			"error":  rejected.Message,
			"reason": string(rejected.Reason),
		})
		return
	}

	status := http.StatusInternalServerError
	var (
		refreshDown *refresh.UnavailableError
		usageDown   *usage.UnavailableError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &refreshDown), errors.As(err, &usageDown):
		status = http.StatusBadGateway
	}
	s.jsonError(w, status, err.Error())
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleList returns summaries for all stored profiles.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.jsonResponse(w, s.handlers.List())
}

// handleAuthTree dispatches the /auth/ subtree:
//
//	GET  /auth/current
//	POST /auth/refresh/{id}
//	POST /auth/activate/{id}
//	GET  /auth/{id}/limits
//	GET  /auth/{id}/history
func (s *Server) handleAuthTree(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/auth/"))

	switch {
	case len(parts) == 1 && parts[0] == "current":
		if r.Method != http.MethodGet {
			s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.jsonResponse(w, s.handlers.Current())

	case len(parts) == 2 && parts[0] == "refresh":
		s.refreshProfile(w, r, parts[1])

	case len(parts) == 2 && parts[0] == "activate":
		if r.Method != http.MethodPost {
			s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		result, err := s.handlers.Activate(parts[1])
		if err != nil {
			s.operationError(w, err)
			return
		}
		s.Emit("profile_activated", result)
		s.jsonResponse(w, result)

	case len(parts) == 2 && parts[1] == "limits":
		if r.Method != http.MethodGet {
			s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
		defer cancel()
		snapshot, err := s.handlers.Limits(ctx, parts[0])
		if err != nil {
			s.operationError(w, err)
			return
		}
		s.jsonResponse(w, snapshot)

	case len(parts) == 2 && parts[1] == "history":
		if r.Method != http.MethodGet {
			s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		history, err := s.handlers.History(parts[0])
		if err != nil {
			s.operationError(w, err)
			return
		}
		s.jsonResponse(w, history)

	default:
		s.jsonError(w, http.StatusNotFound, "unknown route")
	}
}

// handleLegacyRefresh serves POST /refresh-token/{id}, the back-compat alias
// for POST /auth/refresh/{id}.
func (s *Server) handleLegacyRefresh(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/refresh-token/"))
	if len(parts) != 1 {
		s.jsonError(w, http.StatusNotFound, "unknown route")
		return
	}
	s.refreshProfile(w, r, parts[0])
}

func (s *Server) refreshProfile(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()

	summary, err := s.handlers.Refresh(ctx, id)
	if err != nil {
		s.operationError(w, err)
		return
	}
	s.Emit("auth_refreshed", map[string]string{"id": id})
	s.jsonResponse(w, summary)
}

// handleSSE streams server events for live updates.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCh := make(chan Event, 10)
	s.sseMu.Lock()
	s.sseClients[clientCh] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, clientCh)
		s.sseMu.Unlock()
		close(clientCh)
	}()

	fmt.Fprintf(w, "event: ping\ndata: {\"time\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
	flusher.Flush()

	for {
		select {
		case event, ok := <-clientCh:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()

		case <-r.Context().Done():
			return

		case <-time.After(30 * time.Second):
			fmt.Fprintf(w, "event: ping\ndata: {\"time\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// splitPath splits a URL path into its non-empty segments.
func splitPath(path string) []string {
	parts := []string{}
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
