package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackhub/internal/model"
)

type ProjectService interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateProject(ctx context.Context, ownerID, name, description string) (*model.Project, error)
	UpdateResultsFramework(ctx context.Context, id string, rf model.ResultsFramework) (*model.Project, error)
	Completion(ctx context.Context, id string) (int, error)
}

type ProjectHandler struct {
	projects ProjectService
	logger   *zap.Logger
}

func NewProjectHandler(projects ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// ListProjects handles GET /projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projects.ListProjects(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "failed to list projects", err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject handles POST /projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	p, err := h.projects.CreateProject(c.Request.Context(), userID(c), req.Name, req.Description)
	if err != nil {
		writeError(c, h.logger, "failed to create project", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetProject handles GET /projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, err := h.projects.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "failed to get project", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProject handles PUT /projects/:id. Only metadata.resultsFramework is
// accepted, and it replaces the stored tree wholesale.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	var req struct {
		Metadata *struct {
			ResultsFramework *model.ResultsFramework `json:"resultsFramework"`
		} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Metadata == nil || req.Metadata.ResultsFramework == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metadata.resultsFramework is required"})
		return
	}

	p, err := h.projects.UpdateResultsFramework(c.Request.Context(), c.Param("id"), *req.Metadata.ResultsFramework)
	if err != nil {
		writeError(c, h.logger, "failed to update project", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetCompletion handles GET /projects/:id/completion
func (h *ProjectHandler) GetCompletion(c *gin.Context) {
	id := c.Param("id")
	pct, err := h.projects.Completion(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "failed to compute completion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projectId":            id,
		"completionPercentage": pct,
	})
}
