package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/supabase"
)

// ProjectService serves owner-scoped reads and deletes.
type ProjectService struct {
	ledger  ProjectLedger
	storage *StorageService
	log     logrus.FieldLogger
}

func NewProjectService(ledger ProjectLedger, storage *StorageService, log logrus.FieldLogger) *ProjectService {
	return &ProjectService{
		ledger:  ledger,
		storage: storage,
		log:     log,
	}
}

func (s *ProjectService) List(ctx context.Context, userID uuid.UUID) ([]models.ProjectResponse, error) {
	const op = "projects.list"

	projects, err := s.ledger.ListProjects(ctx, userID)
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}

	out := make([]models.ProjectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, s.toResponse(ctx, &projects[i]))
	}
	return out, nil
}

func (s *ProjectService) Get(ctx context.Context, projectID, userID uuid.UUID) (*models.ProjectResponse, error) {
	const op = "projects.get"

	project, err := s.ledger.GetUserProject(ctx, projectID, userID)
	if errors.Is(err, supabase.ErrProjectNotFound) {
		return nil, newError(KindNotFound, op, err)
	}
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}

	resp := s.toResponse(ctx, project)
	return &resp, nil
}

// Delete removes the ledger row, then the stored blobs. A project that is
// being generated cannot be deleted.
func (s *ProjectService) Delete(ctx context.Context, projectID, userID uuid.UUID) error {
	const op = "projects.delete"

	project, err := s.ledger.GetUserProject(ctx, projectID, userID)
	if errors.Is(err, supabase.ErrProjectNotFound) {
		return newError(KindNotFound, op, err)
	}
	if err != nil {
		return newError(KindInternal, op, err)
	}
	if project.Status == models.StatusProcessing {
		return newError(KindAlreadyProcessing, op, errors.New("project is being generated"))
	}

	if err := s.ledger.DeleteProject(ctx, projectID, userID); err != nil {
		if errors.Is(err, supabase.ErrProjectNotFound) {
			// Reserved between the read and the delete.
			return newError(KindAlreadyProcessing, op, err)
		}
		return newError(KindInternal, op, err)
	}

	if err := s.storage.RemoveProjectObjects(ctx, project); err != nil {
		s.log.WithError(err).WithField("project_id", projectID).Warn("failed to remove project files")
	}
	return nil
}

func (s *ProjectService) toResponse(ctx context.Context, p *models.Project) models.ProjectResponse {
	resp := models.ProjectResponse{
		ID:            p.ID.String(),
		Prompt:        p.Prompt,
		Status:        string(p.Status),
		PaymentStatus: string(p.PaymentStatus),
		LastError:     p.LastError.String,
		CreatedAt:     p.CreatedAt,
	}
	if p.PaidAt.Valid {
		resp.PaidAt = &p.PaidAt.Time
	}
	if p.CompletedAt.Valid {
		resp.CompletedAt = &p.CompletedAt.Time
	}
	resp.InputImageURL = s.mint(ctx, p.ID, p.InputImageRef)
	if p.OutputImageRef.Valid {
		resp.OutputImageURL = s.mint(ctx, p.ID, p.OutputImageRef.String)
	}
	return resp
}

func (s *ProjectService) mint(ctx context.Context, projectID uuid.UUID, stored string) string {
	if stored == "" {
		return ""
	}
	url, err := s.storage.URL(ctx, stored)
	if err != nil {
		s.log.WithError(err).WithField("project_id", projectID).Warn("failed to mint image url")
		return ""
	}
	return url
}
