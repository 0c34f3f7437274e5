// Package blob uploads bill PDFs and extracted text to S3-compatible storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"BillsScanner/internal/config"
	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/ports"
)

// defaultRegion avoids a bucket-location lookup before every upload.
const defaultRegion = "us-east-1"

// MinioStore writes objects into one bucket and hands back their public URLs.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *slog.Logger
}

var _ ports.BlobStore = (*MinioStore)(nil)

// NewMinioStore creates a client for cfg. No request is made until the first upload.
func NewMinioStore(cfg config.StorageConfig, logger *slog.Logger) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("storage endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
		logger:    logging.OrDiscard(logger).With("component", "blob"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, domain.TransientError(err))
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: defaultRegion}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("bucket created", "bucket", s.bucket)
	return nil
}

// Put uploads data under name and returns the object's public URL.
func (s *MinioStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if name == "" {
		return "", errors.New("object name is empty")
	}

	info, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", name, classify(err))
	}

	s.logger.Debug("object stored", "name", name, "size", info.Size)
	return s.URL(name), nil
}

// URL returns where name can be downloaded from.
func (s *MinioStore) URL(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicURL + "/" + s.bucket + "/" + strings.Join(segments, "/")
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode >= 500, resp.Code == "SlowDown", resp.Code == "RequestTimeout":
		return domain.TransientError(err)
	case resp.StatusCode == 0:
		// No HTTP response at all: the endpoint was unreachable.
		return domain.TransientError(err)
	default:
		return err
	}
}
