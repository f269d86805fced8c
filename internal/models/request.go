package models

import "mime/multipart"

// CheckoutRequest is the multipart form accepted by POST /checkout.
type CheckoutRequest struct {
	Prompt string                `form:"prompt" binding:"required"`
	Image  *multipart.FileHeader `form:"image" binding:"required"`
}

// GenerateRequest is the multipart form accepted by POST /generate.
type GenerateRequest struct {
	ProjectID string                `form:"projectId" binding:"required,uuid"`
	Prompt    string                `form:"prompt" binding:"required"`
	Image     *multipart.FileHeader `form:"image" binding:"required"`
}

type ErrorResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message,omitempty"`
	OutputRef        string `json:"outputRef,omitempty"`
	InferenceCharged bool   `json:"inferenceCharged,omitempty"`
}
