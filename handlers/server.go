package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/config"
	"github.com/nijaru/yt-clip/media"
	"github.com/nijaru/yt-clip/middleware"
	"github.com/nijaru/yt-clip/pipeline"
	"github.com/nijaru/yt-clip/session"
	"github.com/nijaru/yt-clip/utils"
	"github.com/nijaru/yt-clip/youtube"
)

// Pipeline is the stage runner behind the session endpoints.
type Pipeline interface {
	RegisterSession(ctx context.Context, sess *session.Session)
	FetchMetadata(ctx context.Context, sess *session.Session, url string) (*youtube.Metadata, error)
	CreateClip(ctx context.Context, sess *session.Session, opts pipeline.ClipOptions) (*media.Artifact, error)
	GenerateSubtitles(ctx context.Context, sess *session.Session, lang string) (*pipeline.SubtitleResult, error)
	EmbedSubtitles(ctx context.Context, sess *session.Session) (*media.Artifact, error)
}

// SessionStore drops the record of a deleted session.
type SessionStore interface {
	DeleteSession(ctx context.Context, id string) error
}

type Server struct {
	config    *config.Config
	pipeline  Pipeline
	sessions  *session.Manager
	store     SessionStore
	logger    *logrus.Logger
	server    *http.Server
	startTime time.Time
}

type ServerOption func(*Server)

func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = session.NewManager(cfg.TempDir)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func WithPipeline(p Pipeline) ServerOption {
	return func(s *Server) { s.pipeline = p }
}

func WithSessions(m *session.Manager) ServerOption {
	return func(s *Server) { s.sessions = m }
}

func WithStore(store SessionStore) ServerOption {
	return func(s *Server) { s.store = store }
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and releases every session lock.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	err := s.server.Shutdown(ctx)
	s.sessions.CloseAll()
	return err
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/metadata", s.handleFetchMetadata)
			r.Post("/clip", s.handleCreateClip)
			r.Post("/subtitles", s.handleGenerateSubtitles)
			r.Post("/embed", s.handleEmbedSubtitles)
			r.Get("/files/{kind}", s.handleDownload)
		})
	})

	return middleware.Chain(r,
		middleware.RequestID,
		middleware.Logging,
		middleware.Recovery,
		middleware.CORS(s.config.CORS),
		middleware.RateLimit(s.config.RateLimit),
		middleware.Timeout(s.config.RequestTimeout),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
		"sessions":  s.sessions.Len(),
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": utils.HumanBytes(int64(m.Alloc)),
			"system":    utils.HumanBytes(int64(m.Sys)),
			"gc_cycles": m.NumGC,
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, status)
}
