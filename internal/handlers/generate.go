package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ai-image-editor-backend/internal/middleware"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
)

type GenerateHandler struct {
	generation     *services.GenerationService
	maxUploadBytes int64
}

func NewGenerateHandler(generation *services.GenerationService, maxUploadBytes int64) *GenerateHandler {
	return &GenerateHandler{
		generation:     generation,
		maxUploadBytes: maxUploadBytes,
	}
}

// Generate godoc
// @Summary     Run generation for a paid project
// @Description Uploads the image, calls the inference provider with the paid prompt and stores the result. Failed runs leave the project retryable.
// @Tags        generate
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       projectId formData string true "Project ID"
// @Param       prompt    formData string true "Edit instruction"
// @Param       image     formData file   true "Source image"
// @Success     200 {object} models.GenerateResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /generate [post]
func (h *GenerateHandler) Generate(c *gin.Context) {
	const op = "generate"

	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, &services.Error{Kind: services.KindUnauthorized, Op: op})
		return
	}

	limitBody(c, h.maxUploadBytes)

	var req models.GenerateRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidInput(c, op, err)
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		invalidInput(c, op, err)
		return
	}

	image, err := readUpload(req.Image, h.maxUploadBytes)
	if err != nil {
		invalidInput(c, op, err)
		return
	}

	result, err := h.generation.Generate(c.Request.Context(), services.GenerateInput{
		ProjectID: projectID,
		UserID:    userID,
		Prompt:    req.Prompt,
		Filename:  req.Image.Filename,
		Image:     image,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.GenerateResponse{
		OutputRef:      result.OutputURL,
		ProviderRawRef: result.ProviderRawRef,
		ProjectID:      result.ProjectID.String(),
	})
}
