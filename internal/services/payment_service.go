package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ai-image-editor-backend/internal/events"
	"ai-image-editor-backend/internal/stripe"
	"ai-image-editor-backend/internal/supabase"
)

// WebhookResult describes how a delivery was handled. Every result is
// acknowledged to the processor.
type WebhookResult struct {
	EventID   string
	EventType string
	ProjectID uuid.UUID
	Outcome   supabase.PaymentOutcome
	Ignored   bool
}

type PaymentService struct {
	verifier  WebhookVerifier
	ledger    ProjectLedger
	publisher events.Publisher
	log       logrus.FieldLogger
}

func NewPaymentService(verifier WebhookVerifier, ledger ProjectLedger, publisher events.Publisher, log logrus.FieldLogger) *PaymentService {
	return &PaymentService{
		verifier:  verifier,
		ledger:    ledger,
		publisher: publisher,
		log:       log,
	}
}

// HandleWebhook verifies the raw payload against its signature header and
// applies the event. Nothing is read or written before verification passes.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	const op = "payment.webhook"

	if signature == "" {
		return nil, newError(KindSignatureInvalid, op, errors.New("missing signature header"))
	}

	event, err := s.verifier.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, stripe.ErrSignatureInvalid) {
			return nil, newError(KindSignatureInvalid, op, err)
		}
		return nil, newError(KindInvalidInput, op, err)
	}

	return s.ApplyEvent(ctx, event)
}

// ApplyEvent marks the referenced project paid. Duplicate deliveries, already
// paid projects and unknown projects are acknowledged without change.
func (s *PaymentService) ApplyEvent(ctx context.Context, event *stripe.PaymentEvent) (*WebhookResult, error) {
	const op = "payment.apply"

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}
	log := s.log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if event.SessionID == "" {
		log.Debug("ignoring event")
		result.Ignored = true
		return result, nil
	}
	if !event.Completed {
		log.WithField("payment_status", event.PaymentStatus).Info("checkout completed without payment, waiting for async confirmation")
		result.Ignored = true
		return result, nil
	}

	projectID, userID, err := correlation(event)
	if err != nil {
		log.WithError(err).Warn("payment event without usable metadata")
		return nil, newError(KindInvalidInput, op, err)
	}
	result.ProjectID = projectID
	log = log.WithField("project_id", projectID)

	outcome, err := s.ledger.ApplyPayment(ctx, supabase.PaymentRecord{
		EventID:       event.ID,
		EventType:     event.Type,
		ProjectID:     projectID,
		UserID:        userID,
		SessionID:     event.SessionID,
		TransactionID: event.TransactionID,
	})
	if err != nil {
		log.WithError(err).Error("failed to apply payment")
		return nil, newError(KindInternal, op, err)
	}
	result.Outcome = outcome

	switch outcome {
	case supabase.PaymentApplied:
		log.Info("project marked paid")
		events.Publish(ctx, s.publisher, s.log, projectID, events.ProjectPaid, events.PaidPayload(projectID, event.TransactionID))
	case supabase.PaymentAlreadyPaid:
		log.Info("project already paid")
	case supabase.PaymentDuplicate:
		log.Info("duplicate event delivery")
	case supabase.PaymentNotFound:
		log.Warn("payment for unknown project")
	}

	return result, nil
}

func correlation(event *stripe.PaymentEvent) (uuid.UUID, uuid.UUID, error) {
	if event.ProjectID == "" || event.UserID == "" {
		return uuid.Nil, uuid.Nil, errors.New("missing project_id or user_id metadata")
	}
	projectID, err := uuid.Parse(event.ProjectID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid project_id metadata: %w", err)
	}
	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid user_id metadata: %w", err)
	}
	return projectID, userID, nil
}
