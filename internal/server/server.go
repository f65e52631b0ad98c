// Package server exposes the voice chat page and its JSON/websocket API.
package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"VoiceChat/internal/chatbot"
	"VoiceChat/internal/session"
)

// SessionCookie carries the session ID between requests
const SessionCookie = "voicechat_session"

const stateKey = "voicechat.session"

//go:embed web/index.html
var indexHTML []byte

// Options configures a Server
type Options struct {
	Store           *session.Store
	Bot             *chatbot.Bot
	Logger          *slog.Logger
	CollapseRepeats bool
	MaxAudioBytes   int64
	Release         bool
}

// Server wraps the gin engine with graceful shutdown helpers
type Server struct {
	engine   *gin.Engine
	store    *session.Store
	bot      *chatbot.Bot
	logger   *slog.Logger
	collapse bool
	maxAudio int64
	upgrader websocket.Upgrader
}

// New constructs the HTTP server with its middleware and routes
func New(opts Options) *Server {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = 10 << 20
	}

	s := &Server{
		engine:   gin.New(),
		store:    opts.Store,
		bot:      opts.Bot,
		logger:   logger,
		collapse: opts.CollapseRepeats,
		maxAudio: opts.MaxAudioBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.store.Len()})
	})

	s.engine.GET("/", s.withSession(), func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})

	api := s.engine.Group("/api")
	api.DELETE("/session", s.endSession)

	live := api.Group("", s.withSession())
	live.POST("/audio", s.uploadAudio)
	live.POST("/convert", s.convert)
	live.POST("/generate", s.generate)
	live.GET("/reply/audio", s.replyAudio)
	live.GET("/history", s.history)
	live.GET("/ws/generate", s.generateWS)
}

// Handler returns the underlying http.Handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP listener and shuts it down when ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("voicechat HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// withSession resolves the session cookie, starting a session when the
// cookie is missing or names a session that has ended.
func (s *Server) withSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		var st *session.State
		if id, err := c.Cookie(SessionCookie); err == nil {
			st, _ = s.store.Get(id)
		}
		if st == nil {
			st = s.store.Start()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, st.ID, 0, "/", "", false, true)
		}
		c.Set(stateKey, st)
		c.Next()
	}
}

func stateFrom(c *gin.Context) *session.State {
	return c.MustGet(stateKey).(*session.State)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
