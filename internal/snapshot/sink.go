// Package snapshot keeps downloaded retrieve archives in S3-compatible object
// storage so a job can be analyzed again without a new remote retrieve.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/config"
)

// ErrNotFound is returned when no archive is stored for a job.
var ErrNotFound = errors.New("snapshot not found")

// Sink is the minio-backed schemas.ArchiveSink.
type Sink struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
	log      *zap.Logger
}

var _ schemas.ArchiveSink = (*Sink)(nil)

// New creates a sink from the snapshot section of the configuration. The
// bucket is created on first use when missing.
func New(cfg config.SnapshotConfig, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("snapshot endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("snapshot access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot client: %w", err)
	}

	return &Sink{
		client: client,
		bucket: bucket,
		region: region,
		log:    logger.Named("snapshot"),
	}, nil
}

// ObjectKey is the object name of a job's archive.
func ObjectKey(jobID string) string {
	return "jobs/" + strings.TrimSpace(jobID) + "/retrieve.zip"
}

func (s *Sink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		if s.initErr == nil {
			s.log.Info("Created snapshot bucket", zap.String("bucket", s.bucket))
		}
	})
	return s.initErr
}

func (s *Sink) PutArchive(ctx context.Context, jobID string, data []byte) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	key := ObjectKey(jobID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.log.Debug("Stored archive snapshot", zap.String("job_id", jobID), zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

func (s *Sink) GetArchive(ctx context.Context, jobID string) ([]byte, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	key := ObjectKey(jobID)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func notFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNotFound
	}
	return err
}
