package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mangakantei/manga-kantei-api/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore stores image bytes and hands back a publicly reachable URL.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	PublicURL(objectName string) string
}

type s3ObjectStore struct {
	client     *minio.Client
	bucketName string
	endpoint   string
	useSSL     bool
}

func NewS3ObjectStore(cfg *config.Config) (ObjectStore, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	// Ensure the uploads bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.S3BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.S3BucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &s3ObjectStore{
		client:     client,
		bucketName: cfg.S3BucketName,
		endpoint:   cfg.S3Endpoint,
		useSSL:     cfg.S3UseSSL,
	}, nil
}

func (s *s3ObjectStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	reader := bytes.NewReader(data)

	_, err := s.client.PutObject(
		ctx,
		s.bucketName,
		objectName,
		reader,
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)

	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	return s.PublicURL(objectName), nil
}

// PublicURL composes the anonymous-read URL for an object. The bucket policy
// is expected to allow public reads, matching the hosted setup.
func (s *s3ObjectStore) PublicURL(objectName string) string {
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucketName, objectName)
}
