package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"maidlink/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StoredName builds the object name {applicationId}_{documentType}_{uuid}{ext} and
// returns the generated file id alongside it.
func StoredName(upload models.DocumentUpload) (fileID, name string) {
	fileID = uuid.NewString()
	ext := strings.ToLower(filepath.Ext(filepath.Base(upload.FileName)))
	return fileID, fmt.Sprintf("%s_%s_%s%s", upload.ApplicationID, upload.DocumentType, fileID, ext)
}

type LocalStore struct {
	dir    string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewLocalStore(dir string, logger *zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, logger: logger, now: time.Now}, nil
}

func (s *LocalStore) Store(ctx context.Context, upload models.DocumentUpload) (*models.StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fileID, name := StoredName(upload)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, upload.Data, 0o640); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	s.logger.Debug().
		Str("application_id", upload.ApplicationID).
		Str("document_type", string(upload.DocumentType)).
		Str("path", path).
		Msg("Document stored")

	return &models.StoredDocument{
		FileID:       fileID,
		DocumentType: upload.DocumentType,
		OriginalName: upload.FileName,
		StoredName:   name,
		Location:     path,
		Size:         int64(len(upload.Data)),
		ContentType:  upload.ContentType,
		UploadedAt:   s.now().UTC(),
	}, nil
}
