// Package server implements the room relay: a REST API for room lifecycle,
// a per-room websocket channel fanning envelopes out to every participant,
// and Redis-backed room state shared across instances.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server assembles the relay's HTTP surface.
type Server struct {
	cfg   Config
	store *Store
	hub   *Hub
	log   zerolog.Logger
}

// New connects the backing store and builds the server.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Server, error) {
	store, err := NewStore(ctx, cfg.Redis, cfg.RoomTTL)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:   cfg,
		store: store,
		hub:   NewHub(store, cfg.MaxParticipants, log),
		log:   log.With().Str("component", "server").Logger(),
	}, nil
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(originFilter(s.cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", Login(s.cfg.JWTSecret))
		api.POST("/rooms", JWTAuth(s.cfg.JWTSecret), s.createRoom)
		api.GET("/rooms/:code", s.getRoom)
		api.POST("/rooms/:code/leave", JWTAuth(s.cfg.JWTSecret), s.leaveRoom)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/rooms/:code", s.hub.HandleSocket)
	}

	return router
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info().Str("addr", addr).Msg("room relay listening")
	return s.Router().Run(addr)
}

// Close releases backing resources.
func (s *Server) Close() error {
	return s.store.Close()
}

// originFilter rejects browser requests from origins outside the allow
// list. Non-browser clients send no Origin header and pass through.
func originFilter(allowed []string) gin.HandlerFunc {
	allowAll := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || allowAll || set[origin] {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
	}
}
