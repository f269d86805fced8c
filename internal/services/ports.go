package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/stripe"
	"ai-image-editor-backend/internal/supabase"
)

// ProjectLedger is the durable record of every attempt. Implemented by
// supabase.DatabaseClient.
type ProjectLedger interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	GetUserProject(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]models.Project, error)
	SetPaymentReference(ctx context.Context, projectID, userID uuid.UUID, reference string) error
	ApplyPayment(ctx context.Context, rec supabase.PaymentRecord) (supabase.PaymentOutcome, error)
	TransitionStatus(ctx context.Context, projectID, userID uuid.UUID, from, to models.Status, lastError string) (bool, error)
	CompleteProject(ctx context.Context, projectID, userID uuid.UUID, outputRef string) (bool, error)
	ReclaimStale(ctx context.Context, projectID, userID uuid.UUID, lease time.Duration, reason string) (bool, error)
	DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error
}

// ArtifactStore holds input and output images. Implemented by
// supabase.StorageClient and minio.StorageClient.
type ArtifactStore interface {
	Put(ctx context.Context, ref models.ObjectRef, data []byte, contentType string) error
	// URL mints a signed URL valid for ttl, or a public URL when ttl <= 0.
	URL(ctx context.Context, ref models.ObjectRef, ttl time.Duration) (string, error)
	Remove(ctx context.Context, refs ...models.ObjectRef) error
}

// Provider runs one image transformation. Implemented by replicate.Client
// and gemini.Client.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req inference.Request) (inference.Output, error)
}

type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (*stripe.CheckoutSession, error)
}

type WebhookVerifier interface {
	ParseEvent(payload []byte, signature string) (*stripe.PaymentEvent, error)
}
