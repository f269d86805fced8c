package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ai-image-editor-backend/internal/events"
	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/stripe"
)

type CheckoutOptions struct {
	AmountCents int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	// StrictWriteBack fails the checkout when the session id cannot be
	// saved on the project. Otherwise the webhook backfills it.
	StrictWriteBack bool
}

type CheckoutInput struct {
	UserID   uuid.UUID
	Prompt   string
	Filename string
	Image    []byte
}

type CheckoutResult struct {
	SessionID   string
	CheckoutURL string
	ProjectID   uuid.UUID
}

type CheckoutService struct {
	ledger    ProjectLedger
	storage   *StorageService
	payments  PaymentProcessor
	publisher events.Publisher
	log       logrus.FieldLogger
	opts      CheckoutOptions
}

func NewCheckoutService(
	ledger ProjectLedger,
	storage *StorageService,
	payments PaymentProcessor,
	publisher events.Publisher,
	log logrus.FieldLogger,
	opts CheckoutOptions,
) *CheckoutService {
	return &CheckoutService{
		ledger:    ledger,
		storage:   storage,
		payments:  payments,
		publisher: publisher,
		log:       log,
		opts:      opts,
	}
}

// Initiate stores the source image, records an unpaid project and opens a
// hosted checkout session correlated to it through metadata.
func (s *CheckoutService) Initiate(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	const op = "checkout.initiate"

	if in.UserID == uuid.Nil {
		return nil, newError(KindUnauthorized, op, nil)
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, newError(KindInvalidInput, op, errors.New("prompt is required"))
	}
	if len(in.Image) == 0 {
		return nil, newError(KindInvalidInput, op, errors.New("image is required"))
	}
	if !inference.IsImage(in.Image) {
		return nil, newError(KindInvalidInput, op, errors.New("uploaded file is not an image"))
	}

	log := s.log.WithField("user_id", in.UserID)

	inputRef, err := s.storage.StoreInput(ctx, in.UserID, in.Filename, in.Image)
	if err != nil {
		return nil, newError(KindStorageError, op, err)
	}

	project := &models.Project{
		ID:                 uuid.New(),
		UserID:             in.UserID,
		Prompt:             prompt,
		InputImageRef:      inputRef.String(),
		PaymentStatus:      models.PaymentPending,
		PaymentAmountCents: s.opts.AmountCents,
		PaymentCurrency:    s.opts.Currency,
		Status:             models.StatusPendingPayment,
	}
	if err := s.ledger.CreateProject(ctx, project); err != nil {
		s.removeInput(ctx, log, inputRef)
		return nil, newError(KindStorageError, op, err)
	}
	log = log.WithField("project_id", project.ID)

	session, err := s.payments.CreateCheckoutSession(ctx, stripe.CheckoutParams{
		ProjectID:   project.ID,
		UserID:      in.UserID,
		Prompt:      prompt,
		AmountCents: s.opts.AmountCents,
		Currency:    s.opts.Currency,
		ProductName: s.opts.ProductName,
		SuccessURL:  s.opts.SuccessURL,
		CancelURL:   s.opts.CancelURL,
	})
	if err != nil {
		log.WithError(err).Error("checkout session creation failed")
		s.discard(ctx, log, project, inputRef)
		return nil, newError(KindInternal, op, err)
	}

	if err := s.ledger.SetPaymentReference(ctx, project.ID, in.UserID, session.ID); err != nil {
		if s.opts.StrictWriteBack {
			log.WithError(err).WithField("session_id", session.ID).Error("failed to save checkout session id")
			return nil, newError(KindStorageError, op, err)
		}
		log.WithError(err).WithField("session_id", session.ID).Warn("failed to save checkout session id, webhook will backfill it")
	}

	log.WithField("session_id", session.ID).Info("checkout session created")
	events.Publish(ctx, s.publisher, s.log, project.ID, events.ProjectCreated, events.CreatedPayload(project.ID, session.ID))

	return &CheckoutResult{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		ProjectID:   project.ID,
	}, nil
}

// discard deletes a project that never reached the payment processor, so no
// unpayable row is left in the owner's list.
func (s *CheckoutService) discard(ctx context.Context, log logrus.FieldLogger, project *models.Project, inputRef models.ObjectRef) {
	if err := s.ledger.DeleteProject(context.WithoutCancel(ctx), project.ID, project.UserID); err != nil {
		log.WithError(err).Warn("failed to delete abandoned project")
		return
	}
	s.removeInput(ctx, log, inputRef)
}

func (s *CheckoutService) removeInput(ctx context.Context, log logrus.FieldLogger, inputRef models.ObjectRef) {
	if err := s.storage.Remove(context.WithoutCancel(ctx), inputRef); err != nil {
		log.WithError(err).WithField("ref", inputRef.String()).Warn("failed to remove orphaned input")
	}
}
