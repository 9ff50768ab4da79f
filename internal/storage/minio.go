package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioStore keeps documents in a private S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewMinioClient(cfg config.MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// NewMinioStore creates the bucket when it does not exist yet.
func NewMinioStore(ctx context.Context, client *minio.Client, bucket string, logger *zerolog.Logger) (*MinioStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info().Str("bucket", bucket).Msg("Document bucket created")
	}
	return &MinioStore{client: client, bucket: bucket, logger: logger, now: time.Now}, nil
}

func (s *MinioStore) Store(ctx context.Context, upload models.DocumentUpload) (*models.StoredDocument, error) {
	fileID, name := StoredName(upload)
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(upload.Data), int64(len(upload.Data)),
		minio.PutObjectOptions{
			ContentType: contentType,
			UserMetadata: map[string]string{
				"application-id": upload.ApplicationID,
				"document-type":  string(upload.DocumentType),
			},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}

	s.logger.Debug().
		Str("application_id", upload.ApplicationID).
		Str("object", name).
		Int64("size", info.Size).
		Msg("Document uploaded")

	return &models.StoredDocument{
		FileID:       fileID,
		DocumentType: upload.DocumentType,
		OriginalName: upload.FileName,
		StoredName:   name,
		Location:     fmt.Sprintf("s3://%s/%s", s.bucket, name),
		Size:         info.Size,
		ContentType:  upload.ContentType,
		UploadedAt:   s.now().UTC(),
	}, nil
}
