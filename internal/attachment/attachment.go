package attachment

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// s3 DeleteObjects accepts at most this many keys per call.
const deleteBatchSize = 1000

// ObjectRemover deletes blobs by storage key.
type ObjectRemover interface {
	RemoveObjects(ctx context.Context, keys []string) error
}

// Store lists and deletes attachments of tickets and incidents. Metadata lives in the relational
// store; blobs live behind an ObjectRemover.
type Store struct {
	meta    repository.AttachmentRepository
	objects ObjectRemover
	logger  *zap.Logger
}

// NewStore wires the collaborator. objects may be nil when no blob store is configured, in which
// case only metadata is removed.
func NewStore(meta repository.AttachmentRepository, objects ObjectRemover, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{meta: meta, objects: objects, logger: logger}
}

// ListAttachments returns metadata for a record, oldest first.
func (s *Store) ListAttachments(ctx context.Context, recordType domain.ResourceType, recordID string) ([]domain.Attachment, error) {
	return s.meta.ListByRecord(ctx, recordType, recordID)
}

// DeleteAttachments removes blobs first, then metadata. A blob failure leaves metadata intact so the
// call can be repeated.
func (s *Store) DeleteAttachments(ctx context.Context, recordType domain.ResourceType, recordID string) error {
	items, err := s.meta.ListByRecord(ctx, recordType, recordID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	if s.objects != nil {
		keys := make([]string, 0, len(items))
		for _, item := range items {
			if item.StorageKey != "" {
				keys = append(keys, item.StorageKey)
			}
		}
		if err := s.objects.RemoveObjects(ctx, keys); err != nil {
			return fmt.Errorf("remove blobs: %w", err)
		}
	}
	if err := s.meta.DeleteByRecord(ctx, recordType, recordID); err != nil {
		return fmt.Errorf("delete attachment metadata: %w", err)
	}
	s.logger.Info("attachments deleted",
		zap.String("record_type", string(recordType)),
		zap.String("record_id", recordID),
		zap.Int("count", len(items)))
	return nil
}

// S3Remover deletes objects from one bucket.
type S3Remover struct {
	client *s3.Client
	bucket string
}

// NewS3Remover builds an S3 client from static credentials. A custom endpoint switches to path-style
// addressing for S3-compatible stores.
func NewS3Remover(ctx context.Context, cfg config.StorageConfig) (*S3Remover, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3: bucket name is required")
	}
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Remover{client: client, bucket: cfg.S3Bucket}, nil
}

// RemoveObjects deletes keys in batches. Per-key errors reported by S3 fail the call.
func (r *S3Remover) RemoveObjects(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}
		out, err := r.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(r.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("s3 delete %q: %s", aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}
