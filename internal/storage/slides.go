package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/slide-pipeline/internal/domain"
)

const slideColumns = `id, document_id, slide_no, content_text, content_text_vector, image_path,
	extractor, model, metadata, ingestion_start_at, ingestion_end_at, created_at, updated_at`

// SlideRepository handles slide persistence.
type SlideRepository struct {
	db DB
}

// NewSlideRepository creates a new slide repository.
func NewSlideRepository(db DB) *SlideRepository {
	return &SlideRepository{db: db}
}

// Create inserts a slide.
func (r *SlideRepository) Create(ctx context.Context, slide *domain.Slide) error {
	if slide.DocumentID == "" {
		return domain.ValidationError("slide document id is required", nil)
	}
	if slide.ImagePath == "" {
		return domain.ValidationError("slide image path is required", nil)
	}
	if slide.ID == "" {
		slide.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slide.CreatedAt = now
	slide.UpdatedAt = now

	metadata, err := jsonValue(slide.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO slides (id, document_id, slide_no, content_text, content_text_vector, image_path,
			extractor, model, metadata, ingestion_start_at, ingestion_end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.ExecContext(ctx, query,
		slide.ID, slide.DocumentID, slide.Metadata.SlideNo, slide.ContentText, vectorArg(slide.Embedding),
		slide.ImagePath, slide.Extractor, slide.Model, metadata,
		slide.IngestionStartAt, slide.IngestionEndAt, slide.CreatedAt, slide.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert slide: %w", err)
	}
	return nil
}

// CountByDocument returns the number of slides owned by a document.
func (r *SlideRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM slides WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count slides: %w", err)
	}
	return n, nil
}

// DeleteByDocument removes every slide of a document.
func (r *SlideRepository) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM slides WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete slides: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByDocumentAndModel removes the slides of a document produced by one
// extractor/model identity.
func (r *SlideRepository) DeleteByDocumentAndModel(ctx context.Context, documentID, extractor, model string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM slides WHERE document_id = $1 AND extractor = $2 AND model = $3`,
		documentID, extractor, model,
	)
	if err != nil {
		return 0, fmt.Errorf("delete slides by model: %w", err)
	}
	return res.RowsAffected()
}

// ListByDocument returns a document's slides in page order.
func (r *SlideRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Slide, error) {
	query := `SELECT ` + slideColumns + ` FROM slides
		WHERE document_id = $1
		ORDER BY slide_no ASC, created_at ASC`
	return r.list(ctx, query, documentID)
}

// ListUnembedded returns slides with text and no vector, oldest first.
// limit <= 0 means no limit.
func (r *SlideRepository) ListUnembedded(ctx context.Context, limit int) ([]*domain.Slide, error) {
	query := `SELECT ` + slideColumns + ` FROM slides
		WHERE content_text IS NOT NULL AND content_text <> '' AND content_text_vector IS NULL
		ORDER BY created_at ASC, document_id ASC, slide_no ASC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// SetEmbedding stores the vector of one slide.
func (r *SlideRepository) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	if len(vector) == 0 {
		return domain.ValidationError("refusing to store an empty vector", nil)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE slides SET content_text_vector = $1, updated_at = $2 WHERE id = $3`,
		Vector(vector), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update slide vector: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NotFoundError(fmt.Sprintf("slide %s", id), ErrNotFound)
	}
	return nil
}

// FullyEmbeddedDocuments returns the ids among documentIDs that own at least
// one slide and have no slide left without a vector.
func (r *SlideRepository) FullyEmbeddedDocuments(ctx context.Context, documentIDs []string) ([]string, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(documentIDs))
	for i, id := range documentIDs {
		args[i] = id
	}

	query := `
		SELECT d.id FROM documents d
		WHERE d.id IN (` + placeholders(1, len(documentIDs)) + `)
			AND EXISTS (SELECT 1 FROM slides s WHERE s.document_id = d.id)
			AND NOT EXISTS (
				SELECT 1 FROM slides s
				WHERE s.document_id = d.id AND s.content_text_vector IS NULL
			)
		ORDER BY d.created_at ASC, d.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embedded documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SlideRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Slide, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query slides: %w", err)
	}
	defer rows.Close()

	var slides []*domain.Slide
	for rows.Next() {
		slide, err := scanSlide(rows)
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide)
	}
	return slides, rows.Err()
}

func scanSlide(row rowScanner) (*domain.Slide, error) {
	var (
		slide      domain.Slide
		slideNo    int
		content    sql.NullString
		vector     Vector
		metadata   sql.NullString
		start, end sql.NullTime
	)
	err := row.Scan(
		&slide.ID, &slide.DocumentID, &slideNo, &content, &vector, &slide.ImagePath,
		&slide.Extractor, &slide.Model, &metadata, &start, &end, &slide.CreatedAt, &slide.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if content.Valid {
		text := content.String
		slide.ContentText = &text
	}
	if vector != nil {
		slide.Embedding = []float32(vector)
	}
	if err := jsonScan(metadata, &slide.Metadata); err != nil {
		return nil, err
	}
	slide.Metadata.SlideNo = slideNo
	if start.Valid {
		t := start.Time
		slide.IngestionStartAt = &t
	}
	if end.Valid {
		t := end.Time
		slide.IngestionEndAt = &t
	}
	return &slide, nil
}

// vectorArg maps an absent embedding to SQL NULL.
func vectorArg(v []float32) interface{} {
	if v == nil {
		return nil
	}
	return Vector(v)
}
