package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ai-image-editor-backend/internal/middleware"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
)

type ProjectsHandler struct {
	projects *services.ProjectService
}

func NewProjectsHandler(projects *services.ProjectService) *ProjectsHandler {
	return &ProjectsHandler{projects: projects}
}

// ListProjects godoc
// @Summary     List projects
// @Description Lists the caller's projects, newest first, with freshly minted image URLs.
// @Tags        projects
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} models.ProjectListResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /projects [get]
func (h *ProjectsHandler) ListProjects(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, &services.Error{Kind: services.KindUnauthorized, Op: "projects.list"})
		return
	}

	projects, err := h.projects.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProjectListResponse{Projects: projects})
}

// GetProject godoc
// @Summary     Get project
// @Tags        projects
// @Produce     json
// @Security    BearerAuth
// @Param       project_id path string true "Project ID"
// @Success     200 {object} models.ProjectResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /projects/{project_id} [get]
func (h *ProjectsHandler) GetProject(c *gin.Context) {
	userID, projectID, ok := h.scope(c, "projects.get")
	if !ok {
		return
	}

	project, err := h.projects.Get(c.Request.Context(), projectID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject godoc
// @Summary     Delete project
// @Description Deletes the project and its stored images. Refused while generation runs.
// @Tags        projects
// @Produce     json
// @Security    BearerAuth
// @Param       project_id path string true "Project ID"
// @Success     200 {object} models.DeleteResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /projects/{project_id} [delete]
func (h *ProjectsHandler) DeleteProject(c *gin.Context) {
	userID, projectID, ok := h.scope(c, "projects.delete")
	if !ok {
		return
	}

	if err := h.projects.Delete(c.Request.Context(), projectID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.DeleteResponse{Success: true})
}

func (h *ProjectsHandler) scope(c *gin.Context, op string) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, &services.Error{Kind: services.KindUnauthorized, Op: op})
		return uuid.Nil, uuid.Nil, false
	}

	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		invalidInput(c, op, err)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, projectID, true
}
