package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nutrilog/nutrilog/internal/common"
	"github.com/nutrilog/nutrilog/internal/config"
	"github.com/nutrilog/nutrilog/internal/httpapi/handlers"
	"github.com/nutrilog/nutrilog/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, log *logrus.Logger, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret, cfg.AuthDevBypass))

	// Chat pipeline
	authGroup.POST("/chat/sessions", h.CreateChatSession)
	authGroup.POST("/chat/messages", h.SendChatMessage)
	authGroup.GET("/chat/events/stream", h.StreamChatEvents)
	authGroup.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)
	authGroup.DELETE("/chat/sessions/:session_id/messages", h.ClearChatSession)
	authGroup.GET("/chat/jobs/:job_id", h.GetChatJob)

	// Manual food catalog / log CRUD
	authGroup.POST("/foods", h.CreateFood)
	authGroup.GET("/foods", h.ListFoods)
	authGroup.PUT("/foods/:id", h.UpdateFood)
	authGroup.DELETE("/foods/:id", h.DeleteFood)
	authGroup.POST("/entries", h.CreateEntry)
	authGroup.GET("/entries", h.ListEntries)
	authGroup.DELETE("/entries/:id", h.DeleteEntry)

	return r
}
