package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-image-editor-backend/internal/middleware"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
)

type CheckoutHandler struct {
	checkout       *services.CheckoutService
	maxUploadBytes int64
}

func NewCheckoutHandler(checkout *services.CheckoutService, maxUploadBytes int64) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:       checkout,
		maxUploadBytes: maxUploadBytes,
	}
}

// CreateCheckout godoc
// @Summary     Start a paid generation
// @Description Stores the source image, creates an unpaid project and returns a hosted checkout session.
// @Tags        checkout
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       image  formData file   true "Source image"
// @Param       prompt formData string true "Edit instruction"
// @Success     200 {object} models.CheckoutResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /checkout [post]
func (h *CheckoutHandler) CreateCheckout(c *gin.Context) {
	const op = "checkout"

	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, &services.Error{Kind: services.KindUnauthorized, Op: op})
		return
	}

	limitBody(c, h.maxUploadBytes)

	var req models.CheckoutRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidInput(c, op, err)
		return
	}

	image, err := readUpload(req.Image, h.maxUploadBytes)
	if err != nil {
		invalidInput(c, op, err)
		return
	}

	result, err := h.checkout.Initiate(c.Request.Context(), services.CheckoutInput{
		UserID:   userID,
		Prompt:   req.Prompt,
		Filename: req.Image.Filename,
		Image:    image,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.CheckoutResponse{
		SessionID:   result.SessionID,
		CheckoutURL: result.CheckoutURL,
		ProjectID:   result.ProjectID.String(),
	})
}
