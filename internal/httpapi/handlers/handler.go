package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nutrilog/nutrilog/internal/chat"
	"github.com/nutrilog/nutrilog/internal/common"
	"github.com/nutrilog/nutrilog/internal/config"
	"github.com/nutrilog/nutrilog/internal/food"
	"github.com/nutrilog/nutrilog/internal/httpapi/middleware"
	"github.com/nutrilog/nutrilog/internal/store/rabbitmq"
)

type Handler struct {
	Cfg     config.Config
	Log     *logrus.Logger
	ChatSvc *chat.Service
	Events  *chat.EventLog
	Driver  *chat.Driver
	Foods   *food.Repo

	// Rabbit is nil when chat turns are dispatched on an in-process
	// goroutine instead of the durable queue.
	Rabbit *rabbitmq.Publisher
}

func NewHandler(cfg config.Config, log *logrus.Logger, chatSvc *chat.Service, events *chat.EventLog, driver *chat.Driver, foods *food.Repo, rabbit *rabbitmq.Publisher) *Handler {
	return &Handler{
		Cfg:     cfg,
		Log:     log,
		ChatSvc: chatSvc,
		Events:  events,
		Driver:  driver,
		Foods:   foods,
		Rabbit:  rabbit,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func ok(c *gin.Context, data any) {
	common.OK(c, data)
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	common.Fail(c, httpStatus, code, msg)
}

// The chat ingress and stream endpoints answer with a bare error object
// rather than the envelope; their client consumes the SSE payload shapes
// directly.
func failPlain(c *gin.Context, httpStatus int, msg string) {
	c.JSON(httpStatus, gin.H{"error": msg})
}

func unauthorized(c *gin.Context) {
	fail(c, http.StatusUnauthorized, 40101, "unauthorized")
}
