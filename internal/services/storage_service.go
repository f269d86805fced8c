package services

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/models"
)

const defaultUploadName = "image.jpg"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StorageService names objects, writes them to the artifact store and mints
// URLs for stored references.
type StorageService struct {
	store        ArtifactStore
	inputBucket  string
	outputBucket string
	urlTTL       time.Duration
	publicURLs   bool
	now          func() time.Time
}

func NewStorageService(store ArtifactStore, inputBucket, outputBucket string, urlTTL time.Duration, publicURLs bool) *StorageService {
	return &StorageService{
		store:        store,
		inputBucket:  inputBucket,
		outputBucket: outputBucket,
		urlTTL:       urlTTL,
		publicURLs:   publicURLs,
		now:          time.Now,
	}
}

// StoreInput uploads a source image under "<owner>/<unix-millis>-<name>".
func (s *StorageService) StoreInput(ctx context.Context, userID uuid.UUID, filename string, data []byte) (models.ObjectRef, error) {
	ref := models.ObjectRef{
		Bucket: s.inputBucket,
		Path:   fmt.Sprintf("%s/%d-%s", userID, s.now().UnixMilli(), SanitizeFilename(filename)),
	}
	contentType := inference.DetectContentType(data, "")
	if err := s.store.Put(ctx, ref, data, contentType); err != nil {
		return models.ObjectRef{}, err
	}
	return ref, nil
}

// StoreOutput uploads a generated image under "<owner>/<project>-<unix-millis>.<ext>".
func (s *StorageService) StoreOutput(ctx context.Context, userID, projectID uuid.UUID, data []byte, contentType string) (models.ObjectRef, error) {
	ref := models.ObjectRef{
		Bucket: s.outputBucket,
		Path:   fmt.Sprintf("%s/%s-%d.%s", userID, projectID, s.now().UnixMilli(), inference.Extension(contentType)),
	}
	if err := s.store.Put(ctx, ref, data, contentType); err != nil {
		return models.ObjectRef{}, err
	}
	return ref, nil
}

// ProviderURL is the URL handed to the inference provider. It stays valid
// for at least ttl.
func (s *StorageService) ProviderURL(ctx context.Context, ref models.ObjectRef, ttl time.Duration) (string, error) {
	if s.publicURLs {
		ttl = 0
	}
	return s.store.URL(ctx, ref, ttl)
}

// URL mints a client-facing URL for a stored reference string.
func (s *StorageService) URL(ctx context.Context, stored string) (string, error) {
	ref, err := models.ParseObjectRef(stored)
	if err != nil {
		return "", err
	}
	ttl := s.urlTTL
	if s.publicURLs {
		ttl = 0
	}
	return s.store.URL(ctx, ref, ttl)
}

func (s *StorageService) Remove(ctx context.Context, refs ...models.ObjectRef) error {
	return s.store.Remove(ctx, refs...)
}

// RemoveProjectObjects deletes the input and output blobs of a project.
func (s *StorageService) RemoveProjectObjects(ctx context.Context, p *models.Project) error {
	var refs []models.ObjectRef
	for _, stored := range []string{p.InputImageRef, p.OutputImageRef.String} {
		if stored == "" {
			continue
		}
		ref, err := models.ParseObjectRef(stored)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil
	}
	return s.store.Remove(ctx, refs...)
}

// SanitizeFilename keeps the base name of an upload with whitespace and
// unsafe characters replaced by underscores.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return defaultUploadName
	}
	return name
}
