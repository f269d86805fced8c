package models

import "time"

type CheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
	ProjectID   string `json:"projectId"`
}

type GenerateResponse struct {
	OutputRef      string `json:"outputRef"`
	ProviderRawRef string `json:"providerRawRef,omitempty"`
	ProjectID      string `json:"projectId"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type ProjectResponse struct {
	ID             string     `json:"id"`
	Prompt         string     `json:"prompt"`
	Status         string     `json:"status"`
	PaymentStatus  string     `json:"payment_status"`
	InputImageURL  string     `json:"input_image_url,omitempty"`
	OutputImageURL string     `json:"output_image_url,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ProjectListResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
