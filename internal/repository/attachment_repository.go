package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) error
	ListByRecord(ctx context.Context, recordType domain.ResourceType, recordID string) ([]domain.Attachment, error)
	DeleteByRecord(ctx context.Context, recordType domain.ResourceType, recordID string) error
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO attachments (record_type, record_id, storage_key, file_name, mime_type, size_bytes)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		attachment.RecordType,
		attachment.RecordID,
		attachment.StorageKey,
		attachment.FileName,
		attachment.MimeType,
		attachment.SizeBytes,
	).Scan(&attachment.ID, &attachment.CreatedAt)
}

func (r *attachmentRepository) ListByRecord(ctx context.Context, recordType domain.ResourceType, recordID string) ([]domain.Attachment, error) {
	const query = `
        SELECT id, record_type, record_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM attachments WHERE record_type=$1 AND record_id=$2 ORDER BY created_at ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, recordType, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.RecordType,
			&attachment.RecordID,
			&attachment.StorageKey,
			&attachment.FileName,
			&attachment.MimeType,
			&attachment.SizeBytes,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}

func (r *attachmentRepository) DeleteByRecord(ctx context.Context, recordType domain.ResourceType, recordID string) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM attachments WHERE record_type=$1 AND record_id=$2`, recordType, recordID)
	return err
}
