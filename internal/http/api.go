package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"task-board/internal/auth"
	"task-board/internal/domain"
	"task-board/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config carries the collaborators the HTTP layer is wired to.
type Config struct {
	Tasks        service.TaskService
	Users        service.UserService
	Tokens       *auth.TokenService
	Gate         *auth.Gate
	DB           Pinger
	SecureCookie bool
	CORSOrigins  []string
	Logger       *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	tasks        service.TaskService
	users        service.UserService
	tokens       *auth.TokenService
	gate         *auth.Gate
	db           Pinger
	secureCookie bool
	corsOrigins  []string
	logger       *logrus.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Gate == nil {
		cfg.Gate = auth.NewGate(cfg.Tokens, auth.DefaultCookieName)
	}
	return &Handler{
		tasks:        cfg.Tasks,
		users:        cfg.Users,
		tokens:       cfg.Tokens,
		gate:         cfg.Gate,
		db:           cfg.DB,
		secureCookie: cfg.SecureCookie,
		corsOrigins:  cfg.CORSOrigins,
		logger:       cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger))
	router.Use(corsMiddleware(h.corsOrigins))
	router.Use(h.requireAuth())

	api := router.Group("/api")
	{
		api.POST("/auth/login", h.login)
		api.POST("/auth/logout", h.logout)
		api.GET("/auth/me", h.me)
		api.GET("/health", h.health)

		api.POST("/tasks", h.createTask)
		api.GET("/tasks", h.listTasks)
		api.GET("/tasks/:id", h.getTask)
		api.PATCH("/tasks/:id", h.updateTask)
		api.DELETE("/tasks/:id", h.deleteTask)
	}

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/tasks")
	})
	router.GET("/login", h.loginPage)
	router.GET("/tasks", h.tasksPage)
}

func (h *Handler) health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			h.logEntry(c).WithError(err).Warn("database ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// respondError maps domain failures to status codes; anything unexpected is
// logged and reported as a generic 500 with fallback as the message.
func (h *Handler) respondError(c *gin.Context, fallback string, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	default:
		h.internalError(c, fallback, err)
	}
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logEntry(c).WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (h *Handler) logEntry(c *gin.Context) *logrus.Entry {
	fields := logrus.Fields{"request_id": c.GetString(requestIDKey)}
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*auth.Identity); ok {
			fields["user_id"] = id.UserID
		}
	}
	return h.logger.WithFields(fields)
}
