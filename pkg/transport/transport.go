// Package transport exposes the data management core's mutation API
// (SPEC_FULL.md §6) as a JSON request-reply HTTP endpoint: one route per
// row of the mutation table, authenticated against the caller's agent
// bearer token. It is grounded on the teacher's pkg/server HTTP layer —
// the same net/http ServeMux routing, the same CORS/logging/recovery/
// metrics middleware chain, the same JSON helper shape — generalized
// from a Neo4j-compatible Cypher endpoint into a narrow RPC surface for
// a single Go type, datamanagement.Model.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nepomuk-go/datacore/pkg/auth"
	"github.com/nepomuk-go/datacore/pkg/datamanagement"
)

// Errors for HTTP operations.
var (
	ErrServerClosed  = fmt.Errorf("transport: server closed")
	ErrInternalError = fmt.Errorf("transport: internal server error")
)

// Config holds HTTP server configuration options.
type Config struct {
	// Address to bind to (default: "0.0.0.0")
	Address string
	// Port to listen on (default: 7431)
	Port int
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize in bytes (default: 10MB)
	MaxRequestSize int64
	// EnableCORS for cross-origin requests
	EnableCORS bool
	// CORSOrigins allowed (default: "*")
	CORSOrigins []string
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:        "0.0.0.0",
		Port:           7431,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024,
		EnableCORS:     true,
		CORSOrigins:    []string{"*"},
	}
}

// Server is the HTTP endpoint for the data management mutation API.
// Thread-safe; handles concurrent requests and supports graceful
// shutdown.
type Server struct {
	config *Config
	model  *datamanagement.Model
	auth   *auth.Authenticator

	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New creates a transport server over model. authenticator may be nil,
// which disables bearer-token checking entirely (development only —
// every request is then attributed to the "app" field it supplies
// itself, with no verification).
func New(model *datamanagement.Model, authenticator *auth.Authenticator, config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if model == nil {
		return nil, fmt.Errorf("transport: model required")
	}
	return &Server{config: config, model: model, auth: authenticator}, nil
}

// Start begins accepting connections. Non-blocking; serves in a
// background goroutine.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Printf("transport: serve error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats reports request/error/uptime counters.
type Stats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"request_count"`
	ErrorCount     int64         `json:"error_count"`
	ActiveRequests int64         `json:"active_requests"`
}

func (s *Server) Stats() Stats {
	return Stats{
		Uptime:         time.Since(s.started),
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
	}
}

// =============================================================================
// Router
// =============================================================================

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/auth/token", s.handleToken)

	// One route per §6 mutation API row.
	mux.HandleFunc("/v1/addProperty", s.withAuth(s.handleAddProperty))
	mux.HandleFunc("/v1/setProperty", s.withAuth(s.handleSetProperty))
	mux.HandleFunc("/v1/removeProperty", s.withAuth(s.handleRemoveProperty))
	mux.HandleFunc("/v1/removeResources", s.withAuth(s.handleRemoveResources))
	mux.HandleFunc("/v1/createResource", s.withAuth(s.handleCreateResource))
	mux.HandleFunc("/v1/removeDataByApplication", s.withAuth(s.handleRemoveDataByApplication))
	mux.HandleFunc("/v1/removeAllDataByApplication", s.withAuth(s.handleRemoveAllDataByApplication))
	mux.HandleFunc("/v1/storeResources", s.withAuth(s.handleStoreResources))
	mux.HandleFunc("/v1/mergeResources", s.withAuth(s.handleMergeResources))
	mux.HandleFunc("/v1/describeResources", s.withAuth(s.handleDescribeResources))
	mux.HandleFunc("/v1/watch", s.withAuth(s.handleWatch))

	handler := s.corsMiddleware(mux)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	return handler
}

// =============================================================================
// Middleware
// =============================================================================

type contextKey string

const contextKeyAgent contextKey = "agent"

// withAuth resolves the caller's bearer token to an agent ID and stores
// it in the request context; agentFromContext retrieves it. When no
// authenticator is configured, requests pass through unauthenticated
// and handlers fall back to the "app" field in the request body.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			handler(w, r)
			return
		}

		token := auth.ExtractToken(
			r.Header.Get("Authorization"),
			r.Header.Get("X-API-Key"),
			r.URL.Query().Get("token"),
		)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, "no bearer token supplied", nil)
			return
		}

		agentID, err := s.auth.AgentID(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyAgent, agentID)
		handler(w, r.WithContext(ctx))
	}
}

// agentFromContext returns the authenticated agent ID, or fallback if
// the request carried no authenticator-verified identity.
func agentFromContext(r *http.Request, fallback string) string {
	if v, ok := r.Context().Value(contextKeyAgent).(string); ok && v != "" {
		return v
	}
	return fallback
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			allowed := false
			for _, o := range s.config.CORSOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if r.URL.Path != "/health" {
			s.logRequest(r, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				fmt.Printf("transport: panic: %v\n%s\n", err, buf[:n])
				s.errorCount.Add(1)
				s.writeError(w, http.StatusInternalServerError, "internal server error", ErrInternalError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Misc endpoints
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Stats())
}

// tokenRequest is the /auth/token body: agent ID + secret.
type tokenRequest struct {
	AgentID string `json:"agent_id"`
	Secret  string `json:"secret"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.writeError(w, http.StatusNotImplemented, "authentication is disabled", nil)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required", nil)
		return
	}
	var req tokenRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body", err)
		return
	}
	resp, err := s.auth.Authenticate(req.AgentID, req.Secret)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "authentication failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// JSON / logging helpers
// =============================================================================

func (s *Server) readJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, s.config.MaxRequestSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the JSON shape of every non-2xx reply: a stable
// kind tag (SPEC_FULL.md §7) plus a human-readable message.
type errorResponse struct {
	Error   bool   `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	s.errorCount.Add(1)
	resp := errorResponse{Error: true, Message: message}
	if kind, ok := errKind(err); ok {
		resp.Kind = kind
		status = statusForKind(err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) logRequest(r *http.Request, status int, duration time.Duration) {
	fmt.Printf("[transport] %s %s %s %d %v\n", getClientIP(r), r.Method, r.URL.Path, status, duration)
}

// jsonEncoder returns a function writing one compact JSON value per
// call, newline-terminated, to w — the wire shape handleWatch streams.
func jsonEncoder(w http.ResponseWriter) func(v any) error {
	enc := json.NewEncoder(w)
	return func(v any) error { return enc.Encode(v) }
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.Split(ip, ",")[0]
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
