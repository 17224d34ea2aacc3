package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackhub/internal/model"
)

type TrackingService interface {
	ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error)
	ListModules(ctx context.Context, milestoneID string) ([]model.Module, error)
	ListFeatures(ctx context.Context, moduleID string) ([]model.Feature, error)
	ToggleFeature(ctx context.Context, featureID string, completed bool, userID string) (*model.Feature, error)
	RecomputeModule(ctx context.Context, moduleID string) (*model.Module, error)
	RecomputeMilestone(ctx context.Context, milestoneID string) (*model.Milestone, error)
	SetFeatureBlocked(ctx context.Context, featureID string, blocked bool, userID string) (*model.Feature, error)
	SetModuleBlocked(ctx context.Context, moduleID string, blocked bool, userID string) (*model.Module, error)
	SetMilestoneBlocked(ctx context.Context, milestoneID string, blocked bool, userID string) (*model.Milestone, error)
}

type TrackingHandler struct {
	tracking TrackingService
	logger   *zap.Logger
}

func NewTrackingHandler(tracking TrackingService, logger *zap.Logger) *TrackingHandler {
	return &TrackingHandler{tracking: tracking, logger: logger}
}

// requireQuery reads a mandatory query parameter, writing 400 when absent.
func requireQuery(c *gin.Context, name string) (string, bool) {
	v := c.Query(name)
	if v == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + name + " parameter"})
		return "", false
	}
	return v, true
}

// ListMilestones handles GET /milestones?projectId=
func (h *TrackingHandler) ListMilestones(c *gin.Context) {
	projectID, ok := requireQuery(c, "projectId")
	if !ok {
		return
	}
	milestones, err := h.tracking.ListMilestones(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, h.logger, "failed to list milestones", err)
		return
	}
	c.JSON(http.StatusOK, milestones)
}

// ListModules handles GET /modules?milestoneId=
func (h *TrackingHandler) ListModules(c *gin.Context) {
	milestoneID, ok := requireQuery(c, "milestoneId")
	if !ok {
		return
	}
	modules, err := h.tracking.ListModules(c.Request.Context(), milestoneID)
	if err != nil {
		writeError(c, h.logger, "failed to list modules", err)
		return
	}
	c.JSON(http.StatusOK, modules)
}

// ListFeatures handles GET /features?moduleId=
func (h *TrackingHandler) ListFeatures(c *gin.Context) {
	moduleID, ok := requireQuery(c, "moduleId")
	if !ok {
		return
	}
	features, err := h.tracking.ListFeatures(c.Request.Context(), moduleID)
	if err != nil {
		writeError(c, h.logger, "failed to list features", err)
		return
	}
	c.JSON(http.StatusOK, features)
}

// PatchFeature handles PATCH /features/:id
// Body carries isCompleted, blocked or both; each is written in its own transaction.
func (h *TrackingHandler) PatchFeature(c *gin.Context) {
	var req struct {
		IsCompleted *bool `json:"isCompleted"`
		Blocked     *bool `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || (req.IsCompleted == nil && req.Blocked == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isCompleted or blocked is required"})
		return
	}

	ctx := c.Request.Context()
	var (
		f   *model.Feature
		err error
	)
	if req.IsCompleted != nil {
		f, err = h.tracking.ToggleFeature(ctx, c.Param("id"), *req.IsCompleted, userID(c))
		if err != nil {
			writeError(c, h.logger, "failed to update feature", err)
			return
		}
	}
	if req.Blocked != nil {
		f, err = h.tracking.SetFeatureBlocked(ctx, c.Param("id"), *req.Blocked, userID(c))
		if err != nil {
			writeError(c, h.logger, "failed to update feature", err)
			return
		}
	}
	c.JSON(http.StatusOK, f)
}

// bindBlocked reads the mandatory blocked field, writing 400 when absent.
func bindBlocked(c *gin.Context) (bool, bool) {
	var req struct {
		Blocked *bool `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Blocked == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blocked is required"})
		return false, false
	}
	return *req.Blocked, true
}

// PatchModule handles PATCH /modules/:id
func (h *TrackingHandler) PatchModule(c *gin.Context) {
	blocked, ok := bindBlocked(c)
	if !ok {
		return
	}
	m, err := h.tracking.SetModuleBlocked(c.Request.Context(), c.Param("id"), blocked, userID(c))
	if err != nil {
		writeError(c, h.logger, "failed to update module", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// PatchMilestone handles PATCH /milestones/:id
func (h *TrackingHandler) PatchMilestone(c *gin.Context) {
	blocked, ok := bindBlocked(c)
	if !ok {
		return
	}
	m, err := h.tracking.SetMilestoneBlocked(c.Request.Context(), c.Param("id"), blocked, userID(c))
	if err != nil {
		writeError(c, h.logger, "failed to update milestone", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// RecomputeModule handles POST /modules/:id/recompute-progress
func (h *TrackingHandler) RecomputeModule(c *gin.Context) {
	m, err := h.tracking.RecomputeModule(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "failed to recompute module", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// RecomputeMilestone handles POST /milestones/:id/recompute-progress
func (h *TrackingHandler) RecomputeMilestone(c *gin.Context) {
	m, err := h.tracking.RecomputeMilestone(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "failed to recompute milestone", err)
		return
	}
	c.JSON(http.StatusOK, m)
}
