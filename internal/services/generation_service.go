package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ai-image-editor-backend/internal/events"
	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/supabase"
)

const (
	stageUploadInput  = "upload_input"
	stageInference    = "inference"
	stageUploadOutput = "upload_output"

	releaseTimeout  = 10 * time.Second
	finalizeTimeout = 10 * time.Second
	maxLastError    = 500
)

type GenerationOptions struct {
	// InputURLTTL must outlive InferenceTimeout; the provider reads the
	// source image through this URL.
	InputURLTTL      time.Duration
	InferenceTimeout time.Duration
	PipelineTimeout  time.Duration
	// ReservationLease is how long a processing project may go untouched
	// before another request can reclaim it. It must exceed PipelineTimeout
	// plus the finalize and release timeouts. Zero disables reclaiming.
	ReservationLease time.Duration
}

type GenerateInput struct {
	ProjectID uuid.UUID
	UserID    uuid.UUID
	Prompt    string
	Filename  string
	Image     []byte
}

type GenerateResult struct {
	ProjectID uuid.UUID
	// OutputURL is minted for the response; StoredRef is what the ledger holds.
	OutputURL      string
	StoredRef      string
	ProviderRawRef string
}

type GenerationService struct {
	ledger    ProjectLedger
	storage   *StorageService
	provider  Provider
	fetcher   inference.Fetcher
	publisher events.Publisher
	log       logrus.FieldLogger
	opts      GenerationOptions
}

func NewGenerationService(
	ledger ProjectLedger,
	storage *StorageService,
	provider Provider,
	fetcher inference.Fetcher,
	publisher events.Publisher,
	log logrus.FieldLogger,
	opts GenerationOptions,
) *GenerationService {
	return &GenerationService{
		ledger:    ledger,
		storage:   storage,
		provider:  provider,
		fetcher:   fetcher,
		publisher: publisher,
		log:       log,
		opts:      opts,
	}
}

// Generate runs the paid pipeline for one project: reserve, upload input,
// infer, upload output, finalize. Nothing is written before the reservation
// succeeds. A failure between reservation and finalize hands the project
// back to pending so the owner can retry.
func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	const op = "generation.generate"

	if in.UserID == uuid.Nil {
		return nil, newError(KindUnauthorized, op, nil)
	}
	if len(in.Image) == 0 {
		return nil, newError(KindInvalidInput, op, errors.New("image is required"))
	}

	if s.opts.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.PipelineTimeout)
		defer cancel()
	}

	log := s.log.WithFields(logrus.Fields{
		"project_id": in.ProjectID,
		"user_id":    in.UserID,
		"provider":   s.provider.Name(),
	})

	project, err := s.reserve(ctx, op, in)
	if err != nil {
		return nil, err
	}
	if in.Prompt != "" && in.Prompt != project.Prompt {
		log.Warn("request prompt differs from the paid prompt, using the paid prompt")
	}
	log.Info("generation started")

	inputRef, err := s.storage.StoreInput(ctx, in.UserID, in.Filename, in.Image)
	if err != nil {
		s.release(ctx, log, project, stageUploadInput, err)
		return nil, newError(KindStorageError, op, err)
	}
	inputURL, err := s.storage.ProviderURL(ctx, inputRef, s.opts.InputURLTTL)
	if err != nil {
		s.release(ctx, log, project, stageUploadInput, err)
		return nil, newError(KindStorageError, op, err)
	}

	artifact, err := s.infer(ctx, project.Prompt, inputURL)
	if err != nil {
		s.release(ctx, log, project, stageInference, err)
		return nil, newError(KindUpstreamGenerationFailed, op, err)
	}
	log = log.WithField("content_type", artifact.ContentType)

	outputRef, err := s.storage.StoreOutput(ctx, in.UserID, project.ID, artifact.Data, artifact.ContentType)
	if err != nil {
		s.release(ctx, log, project, stageUploadOutput, err)
		return nil, &Error{
			Kind:             KindStorageError,
			Op:               op,
			Err:              err,
			ProviderRef:      artifact.SourceURL,
			InferenceCharged: true,
		}
	}

	completed, err := s.finalize(ctx, project.ID, in.UserID, outputRef)
	if err == nil && !completed {
		err = fmt.Errorf("project %s left processing before finalize", project.ID)
	}
	if err != nil {
		log.WithError(err).WithField("output_ref", outputRef.String()).Error("output stored but project not finalized")
		return nil, &Error{
			Kind:        KindPartialSuccess,
			Op:          op,
			Err:         err,
			OutputRef:   s.responseURL(ctx, log, outputRef),
			ProviderRef: artifact.SourceURL,
		}
	}

	log.WithField("output_ref", outputRef.String()).Info("generation completed")
	events.Publish(context.WithoutCancel(ctx), s.publisher, s.log, project.ID, events.ProjectCompleted, events.CompletedPayload(project.ID, outputRef.String()))

	return &GenerateResult{
		ProjectID:      project.ID,
		OutputURL:      s.responseURL(ctx, log, outputRef),
		StoredRef:      outputRef.String(),
		ProviderRawRef: artifact.SourceURL,
	}, nil
}

// reserve checks the preconditions and claims the project with the
// pending -> processing update. Losing that update means another request
// owns the run.
func (s *GenerationService) reserve(ctx context.Context, op string, in GenerateInput) (*models.Project, error) {
	project, err := s.ledger.GetProject(ctx, in.ProjectID)
	if errors.Is(err, supabase.ErrProjectNotFound) {
		return nil, newError(KindNotFound, op, err)
	}
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}

	if !project.OwnedBy(in.UserID) {
		return nil, newError(KindForbidden, op, errors.New("project belongs to another user"))
	}
	if !project.IsPaid() {
		return nil, newError(KindPaymentRequired, op, errors.New("project has not been paid"))
	}
	if project.Status == models.StatusProcessing && s.opts.ReservationLease > 0 {
		reclaimed, err := s.ledger.ReclaimStale(ctx, project.ID, in.UserID, s.opts.ReservationLease, "reservation expired")
		if err != nil {
			return nil, newError(KindInternal, op, err)
		}
		if reclaimed {
			s.log.WithField("project_id", project.ID).Warn("reclaimed stale reservation")
			project.Status = models.StatusPending
		}
	}
	if err := statusConflict(op, project.Status); err != nil {
		return nil, err
	}

	reserved, err := s.ledger.TransitionStatus(ctx, project.ID, in.UserID, models.StatusPending, models.StatusProcessing, "")
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}
	if !reserved {
		current, err := s.ledger.GetUserProject(ctx, project.ID, in.UserID)
		if err == nil {
			if err := statusConflict(op, current.Status); err != nil {
				return nil, err
			}
		}
		return nil, newError(KindAlreadyProcessing, op, errors.New("project is being generated"))
	}
	return project, nil
}

func statusConflict(op string, status models.Status) error {
	switch status {
	case models.StatusCompleted:
		return newError(KindAlreadyCompleted, op, errors.New("project already has an output"))
	case models.StatusProcessing:
		return newError(KindAlreadyProcessing, op, errors.New("project is being generated"))
	case models.StatusPendingPayment:
		return newError(KindPaymentRequired, op, errors.New("payment not yet confirmed"))
	}
	return nil
}

func (s *GenerationService) infer(ctx context.Context, prompt, inputURL string) (*inference.Artifact, error) {
	if s.opts.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.InferenceTimeout)
		defer cancel()
	}

	out, err := s.provider.Generate(ctx, inference.Request{Prompt: prompt, ImageURL: inputURL})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.provider.Name(), err)
	}
	s.log.WithField("shape", out.Kind.String()).Debug("provider output received")

	artifact, err := inference.Resolve(ctx, out, s.fetcher)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.provider.Name(), err)
	}
	return artifact, nil
}

// finalize records the output on a detached context. The artifact is already
// stored, so the pipeline deadline must not turn a finished run into a
// partial one.
func (s *GenerationService) finalize(ctx context.Context, projectID, userID uuid.UUID, outputRef models.ObjectRef) (bool, error) {
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	return s.ledger.CompleteProject(finalizeCtx, projectID, userID, outputRef.String())
}

// release returns a reserved project to pending and records why. It runs on
// a detached context because the pipeline deadline may already be spent.
func (s *GenerationService) release(ctx context.Context, log logrus.FieldLogger, project *models.Project, stage string, cause error) {
	log = log.WithField("stage", stage).WithError(cause)
	log.Error("generation failed")

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	msg := fmt.Sprintf("%s: %v", stage, cause)
	if len(msg) > maxLastError {
		msg = strings.ToValidUTF8(msg[:maxLastError], "")
	}

	released, err := s.ledger.TransitionStatus(releaseCtx, project.ID, project.UserID, models.StatusProcessing, models.StatusPending, msg)
	switch {
	case err != nil:
		log.WithField("release_error", err.Error()).Error("failed to release reservation")
	case !released:
		log.Warn("reservation already released")
	}

	events.Publish(releaseCtx, s.publisher, s.log, project.ID, events.ProjectGenerationFailed,
		events.GenerationFailedPayload(project.ID, stage, cause.Error()))
}

func (s *GenerationService) responseURL(ctx context.Context, log logrus.FieldLogger, ref models.ObjectRef) string {
	url, err := s.storage.URL(context.WithoutCancel(ctx), ref.String())
	if err != nil {
		log.WithError(err).Warn("failed to mint output url, returning stored reference")
		return ref.String()
	}
	return url
}
