package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/middleware"
)

// routes GET / 返回的路由列表
var routes = []string{
	"GET /health",
	"GET /api/health",
	"POST /api/chat",
	"POST /api/chat/stream",
	"GET /ws",
}

// NewRouter 组装路由
func NewRouter(serviceName, allowOrigin string, chat *ChatHandler, ws *WebSocketHandler, registry *ConnRegistry, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(allowOrigin))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "routes": routes})
	})
	r.GET("/health", chat.Health)
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "UP",
			"service":     serviceName,
			"connections": registry.Count(),
		})
	})

	api := r.Group("/api")
	{
		api.POST("/chat", chat.Chat)
		api.GET("/chat", chat.ChatMethodNotAllowed)
		api.POST("/chat/stream", chat.ChatStream)
	}

	r.GET("/ws", ws.HandleWebSocket)
	return r
}
