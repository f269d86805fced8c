package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"

	"ai-image-editor-backend/internal/models"
)

// StorageClient is the Supabase Storage artifact store.
type StorageClient struct {
	client  *storage.Client
	baseURL string
}

func NewStorageClient(c *Client) *StorageClient {
	return &StorageClient{
		client:  c.Supabase.Storage,
		baseURL: strings.TrimSuffix(c.Config.SupabaseURL, "/"),
	}
}

func (s *StorageClient) Put(ctx context.Context, ref models.ObjectRef, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	upsert := false
	_, err := s.client.UploadFile(ref.Bucket, ref.Path, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file %s: %w", ref, err)
	}
	return nil
}

// URL returns a signed URL valid for ttl, or the public URL when ttl <= 0.
func (s *StorageClient) URL(ctx context.Context, ref models.ObjectRef, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return PublicURL(s.baseURL, ref), nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := s.client.CreateSignedUrl(ref.Bucket, ref.Path, int(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", ref, err)
	}
	if resp.SignedURL == "" {
		return "", fmt.Errorf("empty signed url for %s", ref)
	}
	return absoluteSignedURL(s.baseURL, resp.SignedURL), nil
}

func (s *StorageClient) Remove(ctx context.Context, refs ...models.ObjectRef) error {
	byBucket := make(map[string][]string)
	for _, ref := range refs {
		byBucket[ref.Bucket] = append(byBucket[ref.Bucket], ref.Path)
	}

	for bucket, paths := range byBucket {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.client.RemoveFile(bucket, paths); err != nil {
			return fmt.Errorf("failed to delete files from %s: %w", bucket, err)
		}
	}
	return nil
}

func PublicURL(baseURL string, ref models.ObjectRef) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", baseURL, ref.Bucket, ref.Path)
}

func absoluteSignedURL(baseURL, signed string) string {
	if strings.HasPrefix(signed, "http://") || strings.HasPrefix(signed, "https://") {
		return signed
	}
	if !strings.HasPrefix(signed, "/") {
		signed = "/" + signed
	}
	if strings.HasPrefix(signed, "/storage/v1/") {
		return baseURL + signed
	}
	return baseURL + "/storage/v1" + signed
}
