package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agencore/internal/common"
	"github.com/suPer8Hu/agencore/internal/httpapi/handlers"
	"github.com/suPer8Hu/agencore/internal/httpapi/middleware"
)

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Admin-Token", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// NewRouter mounts the REST surface and, when ws is non-nil, the chat
// WebSocket at /ws.
func NewRouter(h *handlers.Handler, ws http.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(cors.New(corsConfig(h.Cfg.WSAllowedOrigins)))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	if ws != nil {
		r.GET("/ws", gin.WrapH(ws))
	}

	api := r.Group("/api")

	// auth
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	// agent catalog
	api.GET("/agents", h.ListAgents)
	api.GET("/agents/:id", h.GetAgent)

	// JWT required
	authGroup := api.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/chat/history", h.ChatHistory)
	authGroup.GET("/chat/conversations/:id/messages", h.ConversationMessages)
	authGroup.POST("/chat/stream", h.StreamChat)
	authGroup.POST("/enhance-prompt", h.EnhancePrompt)
	authGroup.GET("/user/accessible-agents", h.AccessibleAgents)
	authGroup.GET("/user/dashboard", h.Dashboard)
	authGroup.POST("/payments/create-intent", h.CreatePaymentIntent)
	authGroup.POST("/payments/verify", h.VerifyPayment)

	admin := api.Group("/admin")
	admin.Use(middleware.AdminRequired(h.Cfg.AdminToken))
	admin.GET("/status", h.AdminStatus)
	admin.GET("/users", h.AdminListUsers)
	admin.GET("/channels/:id", h.AdminGetChannel)
	admin.DELETE("/channels/:id", h.AdminCloseChannel)
	admin.GET("/agents", h.AdminListAgents)
	admin.POST("/agents", h.AdminCreateAgent)
	admin.PUT("/agents/:id", h.AdminUpdateAgent)
	admin.DELETE("/agents/:id", h.AdminDeleteAgent)
	admin.POST("/agents/:id/toggle-status", h.AdminToggleAgent)
	admin.POST("/users/:user_id/agent-access/:agent_id", h.AdminToggleAccess)
	admin.POST("/cleanup", h.AdminCleanup)

	return r
}
