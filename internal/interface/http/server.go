// Package http exposes the fragment router and saga coordinator as a JSON
// REST API.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alem-hub/fragstore/internal/application/command"
	"github.com/alem-hub/fragstore/internal/application/query"
	"github.com/alem-hub/fragstore/internal/application/saga"
	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/interface/http/handlers"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// apiVersion is reported in every response envelope.
const apiVersion = "v1"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds listener limits and authentication settings.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64

	// APIKeyHashes are bcrypt hashes of the keys accepted on write
	// endpoints. Empty disables authentication.
	APIKeyHeader string
	APIKeyHashes []string

	// Version is reported by /health.
	Version string
}

// DefaultConfig listens on :8080 with conservative timeouts.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		APIKeyHeader:   "X-API-Key",
		Version:        apiVersion,
	}
}

// Address is the host:port the server binds.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies are the use cases served by the API. A nil use case makes its
// endpoints answer 501.
type Dependencies struct {
	InsertStudent *saga.InsertStudentSaga
	DeleteStudent *saga.DeleteStudentSaga
	UpgradeYear   *saga.UpgradeYearSaga
	DeleteCourse  *saga.DeleteCourseSaga
	MoveCourse    *saga.MoveCourseSaga

	AddReview *command.AddReviewHandler

	ListStudents    *query.ListStudentsHandler
	NearestDocument *query.NearestDocumentHandler

	Fragments     *fragment.Map
	Logger        *logger.Logger
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server serves the API over HTTP.
type Server struct {
	config  Config
	deps    Dependencies
	log     *logger.Logger
	mux     *http.ServeMux
	auth    *handlers.APIKeyAuth
	handler http.Handler
	srv     *http.Server

	mu      sync.Mutex
	running bool
}

// NewServer builds the router and middleware chain. It fails when an API key
// hash is malformed.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	auth, err := handlers.NewAPIKeyAuth(config.APIKeyHeader, config.APIKeyHashes)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    deps.Logger.With(logger.Component("http")),
		mux:    http.NewServeMux(),
		auth:   auth,
	}
	s.routes()
	s.handler = handlers.ChainHandler(s.mux,
		s.recoverPanics,
		s.tagRequest,
		s.logRequest,
		handlers.SecurityHeadersMiddleware,
		handlers.RequestSizeLimitMiddleware(config.MaxBodyBytes),
	)
	s.srv = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s, nil
}

// Handler returns the full middleware-wrapped API.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /api/v1/fragments", s.handleFragments)
	s.mux.HandleFunc("GET /api/v1/students", s.handleListStudents)
	s.mux.HandleFunc("GET /api/v1/search", s.handleSearch)

	writes := map[string]http.HandlerFunc{
		"POST /api/v1/students":              s.handleInsertStudent,
		"DELETE /api/v1/students/{id}":       s.handleDeleteStudent,
		"POST /api/v1/students/{id}/upgrade": s.handleUpgradeStudent,
		"POST /api/v1/courses/{id}/reviews":  s.handleAddReview,
		"DELETE /api/v1/courses/{id}":        s.handleDeleteCourse,
		"POST /api/v1/courses/{id}/move":     s.handleMoveCourse,
		"POST /api/v1/courses/{id}/upgrade":  s.handleUpgradeCourse,
	}
	for pattern, h := range writes {
		s.mux.Handle(pattern, s.auth.Middleware(h))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens and serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("http server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("listening", logger.String("address", s.config.Address()))
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields at most one
// listener error and is closed when serving stops.
func (s *Server) StartAsync() <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := s.Start(); err != nil {
			errc <- err
		}
	}()
	return errc
}

// Shutdown drains in-flight requests. It is a no-op when not running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if !wasRunning {
		return nil
	}
	s.log.Info("draining http server")
	return s.srv.Shutdown(ctx)
}
