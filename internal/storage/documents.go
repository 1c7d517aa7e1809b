package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/slide-pipeline/internal/domain"
)

const documentColumns = `id, checksum, name, file_path, collection_code, issuer_code,
	publish_at, status, metadata, created_at, updated_at`

// DocumentRepository handles document persistence.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Register inserts doc unless a document with the same checksum exists.
// It always returns the stored row; created reports whether it is new.
func (r *DocumentRepository) Register(ctx context.Context, doc *domain.Document) (stored *domain.Document, created bool, err error) {
	if doc.Checksum == "" {
		return nil, false, domain.ValidationError("document checksum is required", nil)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == 0 {
		doc.Status = domain.StatusDownloaded
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	metadata, err := jsonValue(doc.Metadata)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO documents (id, checksum, name, file_path, collection_code, issuer_code,
			publish_at, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (checksum) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.Checksum, doc.Name, doc.FilePath, doc.CollectionCode, doc.IssuerCode,
		doc.PublishAt, doc.Status, metadata, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert document: %w", err)
	}

	stored, err = r.GetByChecksum(ctx, doc.Checksum)
	if err != nil {
		return nil, false, err
	}
	return stored, affected == 1, nil
}

// CanonicalID reports whether id is a UUID and returns its lowercase
// hyphenated form. Malformed ids can never match a row.
func CanonicalID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// GetByID retrieves a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	canonical, ok := CanonicalID(id)
	if !ok {
		return nil, domain.NotFoundError(fmt.Sprintf("document %s", id), ErrNotFound)
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, canonical))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(fmt.Sprintf("document %s", id), ErrNotFound)
	}
	return doc, err
}

// GetByChecksum retrieves a document by content checksum.
func (r *DocumentRepository) GetByChecksum(ctx context.Context, checksum string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE checksum = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, checksum))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(fmt.Sprintf("document with checksum %s", checksum), ErrNotFound)
	}
	return doc, err
}

// ListByStatus returns documents in any of statuses, oldest first.
// limit <= 0 means no limit.
func (r *DocumentRepository) ListByStatus(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}

	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE status IN (` + placeholders(1, len(statuses)) + `)
		ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	return r.list(ctx, query, args...)
}

// ListByIDs returns the documents among ids that exist, oldest first.
// Ids that are not UUIDs are ignored.
func (r *DocumentRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Document, error) {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if canonical, ok := CanonicalID(id); ok {
			args = append(args, canonical)
		}
	}
	if len(args) == 0 {
		return nil, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE id IN (` + placeholders(1, len(args)) + `)
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, args...)
}

// TransitionStatus moves a document to next after checking the transition
// table. It returns the previous status.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, id string, next domain.Status) (domain.Status, error) {
	var raw int16
	err := r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFoundError(fmt.Sprintf("document %s", id), ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read document status: %w", err)
	}

	prev := domain.Status(raw)
	if _, err := prev.Transition(next); err != nil {
		return prev, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		next, time.Now().UTC(), id, prev,
	)
	if err != nil {
		return prev, fmt.Errorf("update document status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return prev, fmt.Errorf("update document status: %w", err)
	}
	if rows == 0 {
		return prev, fmt.Errorf("document %s changed status concurrently", id)
	}
	return prev, nil
}

// Delete removes a document; its slides are removed by cascade.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NotFoundError(fmt.Sprintf("document %s", id), ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc       domain.Document
		status    int16
		publishAt sql.NullTime
		metadata  sql.NullString
	)
	err := row.Scan(
		&doc.ID, &doc.Checksum, &doc.Name, &doc.FilePath, &doc.CollectionCode, &doc.IssuerCode,
		&publishAt, &status, &metadata, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = domain.Status(status)
	if publishAt.Valid {
		t := publishAt.Time
		doc.PublishAt = &t
	}
	if err := jsonScan(metadata, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}
