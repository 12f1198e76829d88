// Package documents stores uploaded permit files in object storage and
// records them with integrity checksums.
package documents

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/permitsync/permitsync/internal/config"
	"github.com/permitsync/permitsync/internal/models"
)

// Attachment kinds the jurisdictions recognize.
var knownKinds = map[string]bool{
	"plans":             true,
	"site_plan":         true,
	"license":           true,
	"insurance_acord25": true,
}

// DocumentStorage persists document records.
type DocumentStorage interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// Service uploads documents to a MinIO bucket and records their metadata.
type Service struct {
	client *minio.Client
	bucket string
	repo   DocumentStorage
	logger *slog.Logger
}

func NewService(cfg *config.Config, repo DocumentStorage, logger *slog.Logger) (*Service, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Service{client: client, bucket: cfg.MinioBucket, repo: repo, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Upload streams one document into object storage and records it. The
// returned record carries the object URI and the content's SHA-256 checksum.
func (s *Service) Upload(ctx context.Context, orgID uuid.UUID, kind, filename, contentType string, r io.Reader) (*models.Document, error) {
	if !knownKinds[kind] {
		return nil, fmt.Errorf("unknown document kind: %q", kind)
	}

	// Buffer once so the checksum and the upload read the same bytes.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	objectName := fmt.Sprintf("%s/%s/%d-%s", orgID, kind, time.Now().UnixNano(), filename)
	if _, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	doc := &models.Document{
		OrgID:    orgID,
		Kind:     kind,
		URI:      fmt.Sprintf("s3://%s/%s", s.bucket, objectName),
		Checksum: checksum,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("record document: %w", err)
	}

	s.logger.Info("document uploaded", "org_id", orgID, "kind", kind,
		"bytes", len(data), "checksum", checksum)
	return doc, nil
}

// PresignedGet returns a temporary download URL for a stored document.
func (s *Service) PresignedGet(ctx context.Context, doc *models.Document, expiry time.Duration) (string, error) {
	objectName, err := objectNameFromURI(doc.URI, s.bucket)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return u.String(), nil
}

func objectNameFromURI(uri, bucket string) (string, error) {
	prefix := "s3://" + bucket + "/"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", fmt.Errorf("URI %q is not in bucket %q", uri, bucket)
	}
	return uri[len(prefix):], nil
}
