package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-freight-documents/internal/common/database"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

// AuditRecorder is the write/read surface the services depend on
type AuditRecorder interface {
	Append(ctx context.Context, entries ...*AuditEntry) error
	ListByDocument(ctx context.Context, documentType string, documentID int64, limit int) ([]*AuditEntry, error)
}

// AuditRepository appends and reads immutable document audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts the entries in one transaction. It is the only mutation the
// log exposes.
func (r *AuditRepository) Append(ctx context.Context, entries ...*AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO document_audit_log
		    (id, document_type, document_id, action, performed_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING performed_at
	`

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		for _, entry := range entries {
			metadataJSON, err := marshalMetadata(entry.Metadata)
			if err != nil {
				return err
			}
			if entry.ID == "" {
				entry.ID = uuid.NewString()
			}

			err = tx.QueryRow(ctx, query,
				entry.ID,
				entry.DocumentType,
				entry.DocumentID,
				entry.Action,
				entry.PerformedBy,
				metadataJSON,
			).Scan(&entry.PerformedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
			}
		}
		return nil
	})
}

// ListByDocument returns a document's audit trail, newest first
func (r *AuditRepository) ListByDocument(ctx context.Context, documentType string, documentID int64, limit int) ([]*AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, document_type, document_id, action, performed_by, performed_at, metadata
		FROM document_audit_log
		WHERE document_type = $1 AND document_id = $2
		ORDER BY performed_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, documentType, documentID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
	}
	return b, nil
}

func scanEntry(row pgx.Row) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.DocumentType,
		&entry.DocumentID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.PerformedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	return entry, nil
}

// NopAuditRecorder is used when no database is configured
type NopAuditRecorder struct{}

func (NopAuditRecorder) Append(context.Context, ...*AuditEntry) error { return nil }

func (NopAuditRecorder) ListByDocument(context.Context, string, int64, int) ([]*AuditEntry, error) {
	return []*AuditEntry{}, nil
}
