package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ai-image-editor-backend/internal/models"
)

// StorageClient is an S3-compatible artifact store.
type StorageClient struct {
	client *minio.Client
}

func NewStorageClient(endpoint, accessKey, secretKey string, secure bool) (*StorageClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	return &StorageClient{client: client}, nil
}

// EnsureBuckets creates any missing bucket.
func (s *StorageClient) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (s *StorageClient) Put(ctx context.Context, ref models.ObjectRef, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, ref.Bucket, ref.Path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", ref, err)
	}
	return nil
}

func (s *StorageClient) URL(ctx context.Context, ref models.ObjectRef, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		endpoint := s.client.EndpointURL()
		return endpoint.JoinPath(ref.Bucket, ref.Path).String(), nil
	}

	signed, err := s.client.PresignedGetObject(ctx, ref.Bucket, ref.Path, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", ref, err)
	}
	return signed.String(), nil
}

func (s *StorageClient) Remove(ctx context.Context, refs ...models.ObjectRef) error {
	for _, ref := range refs {
		if err := s.client.RemoveObject(ctx, ref.Bucket, ref.Path, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", ref, err)
		}
	}
	return nil
}
