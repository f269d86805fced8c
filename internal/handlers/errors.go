package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
)

var statusByKind = map[services.Kind]int{
	services.KindUnauthorized:             http.StatusUnauthorized,
	services.KindForbidden:                http.StatusForbidden,
	services.KindNotFound:                 http.StatusNotFound,
	services.KindInvalidInput:             http.StatusBadRequest,
	services.KindPaymentRequired:          http.StatusPaymentRequired,
	services.KindSignatureInvalid:         http.StatusBadRequest,
	services.KindUpstreamGenerationFailed: http.StatusBadGateway,
	services.KindStorageError:             http.StatusInternalServerError,
	services.KindAlreadyProcessing:        http.StatusConflict,
	services.KindAlreadyCompleted:         http.StatusConflict,
	services.KindPartialSuccess:           http.StatusInternalServerError,
	services.KindInternal:                 http.StatusInternalServerError,
}

var messageByKind = map[services.Kind]string{
	services.KindUnauthorized:             "authentication required",
	services.KindForbidden:                "project belongs to another user",
	services.KindNotFound:                 "project not found",
	services.KindPaymentRequired:          "payment required before generation",
	services.KindSignatureInvalid:         "invalid webhook signature",
	services.KindUpstreamGenerationFailed: "image generation failed, the project can be retried",
	services.KindStorageError:             "failed to store image",
	services.KindAlreadyProcessing:        "generation already in progress",
	services.KindAlreadyCompleted:         "project already completed",
	services.KindPartialSuccess:           "image generated but the project could not be updated",
	services.KindInternal:                 "internal server error",
}

// HTTPStatus maps a service error kind to its response code.
func HTTPStatus(kind services.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes the error body for err. Causes of server-side
// failures stay in the logs; client errors carry their message.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := services.KindOf(err)
	body := models.ErrorResponse{Error: string(kind), Message: messageByKind[kind]}

	if e, ok := services.AsError(err); ok {
		if kind == services.KindInvalidInput && e.Err != nil {
			body.Message = e.Err.Error()
		}
		body.OutputRef = e.OutputRef
		body.InferenceCharged = e.InferenceCharged
		if e.InferenceCharged {
			body.Message = "image generated but could not be stored, the project can be retried"
		}
	}

	c.JSON(HTTPStatus(kind), body)
}

func invalidInput(c *gin.Context, op string, err error) {
	respondError(c, &services.Error{Kind: services.KindInvalidInput, Op: op, Err: err})
}

// readUpload reads a multipart file, refusing anything over maxBytes.
func readUpload(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if fh == nil {
		return nil, errors.New("image is required")
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}

// limitBody caps a multipart request body. The allowance over maxBytes
// covers form fields and part headers.
func limitBody(c *gin.Context, maxBytes int64) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)
	}
}
