// Package http exposes the progression ledger over a small JSON REST API.
// Every response uses the envelope {success, data, error, meta, request_id};
// administrative endpoints require the admin token.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecoquest/ecoquest-progression/internal/application/command"
	"github.com/ecoquest/ecoquest-progression/internal/application/query"
	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/interface/http/handlers"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64

	// Version is reported by /health.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
		Version:         "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the HTTP handlers call into.
type Dependencies struct {
	// Commands
	RegisterStudent   *command.RegisterStudentHandler
	CompleteLesson    *command.CompleteLessonHandler
	SubmitQuizAttempt *command.SubmitQuizAttemptHandler
	AwardBadges       *command.AwardBadgesHandler
	JoinChallenge     *command.JoinChallengeHandler
	CompleteChallenge *command.CompleteChallengeHandler

	// Queries
	GetStudentStats  *query.GetStudentStatsHandler
	GetPointsHistory *query.GetPointsHistoryHandler
	GetLeaderboard   *query.GetLeaderboardHandler
	ListBadges       *query.ListBadgesHandler
	ListParticipants *query.ListParticipantsHandler

	// Quizzes receives admin upserts of quiz definitions.
	Quizzes quiz.Repository

	// Catalog resolves badge names in progress responses.
	Catalog *badge.Catalog

	// HealthChecker backs /ready. Nil means always ready.
	HealthChecker handlers.HealthChecker

	// AdminAuth guards admin endpoints. Nil disables them.
	AdminAuth *handlers.AdminAuth

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = badge.DefaultCatalog()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return handlers.Chain(
		s.requestIDMiddleware,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		handlers.SecurityHeadersMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
	)(s.router)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)

	// ─────────────────────────────────────────────────────────────────────────
	// Students
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/students", s.handleRegisterStudent)
	s.router.HandleFunc("GET /api/v1/students/{id}", s.handleGetStudent)
	s.router.HandleFunc("GET /api/v1/students/{id}/ledger", s.handleGetLedger)
	s.router.HandleFunc("POST /api/v1/students/{id}/lessons/{lessonId}/complete", s.handleCompleteLesson)
	s.router.HandleFunc("POST /api/v1/students/{id}/quizzes/{quizId}/attempts", s.handleSubmitQuizAttempt)

	// ─────────────────────────────────────────────────────────────────────────
	// Challenges, leaderboard, catalog
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/challenges/{challengeId}/participants", s.handleJoinChallenge)
	s.router.HandleFunc("GET /api/v1/challenges/{challengeId}/participants", s.handleListParticipants)
	s.router.HandleFunc("GET /api/v1/leaderboard", s.handleGetLeaderboard)
	s.router.HandleFunc("GET /api/v1/badges", s.handleListBadges)

	// ─────────────────────────────────────────────────────────────────────────
	// Admin (token required)
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.AdminAuth != nil {
		admin := s.deps.AdminAuth.Require
		s.router.Handle("POST /api/v1/students/{id}/badges", admin(http.HandlerFunc(s.handleAwardBadges)))
		s.router.Handle("POST /api/v1/challenges/{challengeId}/participants/{studentId}/complete",
			admin(http.HandlerFunc(s.handleCompleteChallenge)))
		s.router.Handle("PUT /api/v1/quizzes/{quizId}", admin(http.HandlerFunc(s.handleUpsertQuiz)))
	}
}

// UnauthorizedHandler writes the 401 envelope. It is passed to
// handlers.NewAdminAuth by the entry point.
func UnauthorizedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "admin token is missing or invalid")
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("request_id", getRequestID(r.Context())),
		}
		if rw.statusCode >= http.StatusInternalServerError {
			s.logger.Error("http request", fields...)
			return
		}
		s.logger.Info("http request", fields...)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					logger.Any("panic", rec),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", getRequestID(r.Context())),
				)
				writeError(w, r, http.StatusInternalServerError, codeInternal, "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The channel receives a
// listen error, if any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
