package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trackhub/internal/handler"
	"trackhub/pkg/otel"
	"trackhub/pkg/rbac"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Projects *handler.ProjectHandler
	Tracking *handler.TrackingHandler
	Admin    *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, db Pinger, log *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), TraceMiddleware(), RequestLogger(log))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		read := RequirePermission(rbac.PermissionReadProject)
		auth.GET("/projects", read, h.Projects.ListProjects)
		auth.GET("/projects/:id", read, h.Projects.GetProject)
		auth.GET("/projects/:id/completion", read, h.Projects.GetCompletion)
		auth.GET("/milestones", read, h.Tracking.ListMilestones)
		auth.GET("/modules", read, h.Tracking.ListModules)
		auth.GET("/features", read, h.Tracking.ListFeatures)

		auth.POST("/projects", RequirePermission(rbac.PermissionCreateProject), h.Projects.CreateProject)
		auth.PUT("/projects/:id", RequirePermission(rbac.PermissionEditResults), h.Projects.UpdateProject)
		auth.PATCH("/features/:id", RequirePermission(rbac.PermissionToggleFeature), h.Tracking.PatchFeature)
		block := RequirePermission(rbac.PermissionBlockNode)
		auth.PATCH("/modules/:id", block, h.Tracking.PatchModule)
		auth.PATCH("/milestones/:id", block, h.Tracking.PatchMilestone)

		recompute := RequirePermission(rbac.PermissionRecompute)
		auth.POST("/modules/:id/recompute-progress", recompute, h.Tracking.RecomputeModule)
		auth.POST("/milestones/:id/recompute-progress", recompute, h.Tracking.RecomputeMilestone)

		admin := auth.Group("/admin")
		admin.Use(RequirePermission(rbac.PermissionReplayOutbox))
		{
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}
