package api

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type feedStater interface {
	State() workers.FeedState
}

type Options struct {
	ServiceName     string
	AllowedOrigins  []string
	SendBufferSize  int
	DeliveryTimeout time.Duration
	MaxFrameBytes   int64
}

// Server exposes the relay over HTTP: the live socket, the announcement
// stream, admin and queue submissions, likes and health.
type Server struct {
	log           *slog.Logger
	opts          Options
	registry      contract.IConnectionRegistry
	router        services.IMessageRouter
	groups        services.IGroupNotifier
	broadcaster   services.IEventBroadcaster
	announcements contract.IAnnouncementRepository
	queue         contract.INotificationQueue
	likes         contract.ILikeRepository
	feed          feedStater
	monitoring    *observability.MonitoringManager
	clock         contract.Clock
	upgrader      websocket.Upgrader
}

func NewServer(
	log *slog.Logger,
	opts Options,
	registry contract.IConnectionRegistry,
	router services.IMessageRouter,
	groups services.IGroupNotifier,
	broadcaster services.IEventBroadcaster,
	announcements contract.IAnnouncementRepository,
	queue contract.INotificationQueue,
	likes contract.ILikeRepository,
	feed feedStater,
	monitoring *observability.MonitoringManager,
	clock contract.Clock,
) *Server {
	s := &Server{
		log:           log,
		opts:          opts,
		registry:      registry,
		router:        router,
		groups:        groups,
		broadcaster:   broadcaster,
		announcements: announcements,
		queue:         queue,
		likes:         likes,
		feed:          feed,
		monitoring:    monitoring,
		clock:         clock,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		return s.originAllowed(r.Header.Get("Origin"))
	}}
	return s
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), s.corsMiddleware())
	engine.GET("/", s.handleRoot)
	engine.GET("/ws", s.handleWS)
	engine.GET("/health", s.handleHealth)
	engine.GET("/events", s.handleEvents)
	engine.POST("/admin/post", s.handleAdminPost)
	engine.POST("/notifications", s.handleEnqueueNotification)
	engine.GET("/posts/:postId/likes", s.handleLikesCount)
	engine.PUT("/posts/:postId/likes/:userId", s.handleLike)
	engine.DELETE("/posts/:postId/likes/:userId", s.handleUnlike)
	return engine
}

// handleRoot upgrades socket clients in place and describes the service to everyone else.
func (s *Server) handleRoot(c *gin.Context) {
	if websocket.IsWebSocketUpgrade(c.Request) {
		s.handleWS(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": s.opts.ServiceName + " is running",
		"endpoints": gin.H{
			"health":        "/health",
			"admin_post":    "/admin/post",
			"events":        "/events",
			"notifications": "/notifications",
			"likes":         "/posts/:postId/likes/:userId",
			"websocket":     "Connect to this same URL with WebSocket",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"timestamp":         s.clock.Now().UTC().Format(time.RFC3339Nano),
		"websocket_clients": s.registry.Count(),
		"service":           s.opts.ServiceName,
		"change_feed":       s.feed.State().String(),
		"deliveries":        s.monitoring.Deliveries(),
		"process":           s.monitoring.Latest(),
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || lo.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowed(origin) {
			if lo.Contains(s.opts.AllowedOrigins, "*") {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
