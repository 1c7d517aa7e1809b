package storage

import (
	"context"
	"fmt"
	"time"
)

const schemaVersion = "0001_documents_slides"

// EnsureSchema creates the tables when missing and records the schema
// version. It is idempotent. dimension sizes the PostgreSQL vector column.
func (s *Store) EnsureSchema(ctx context.Context, dimension int) error {
	statements := sqliteSchema
	if s.dialect == DialectPostgres {
		statements = postgresSchema(dimension)
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, applied_at)
		VALUES ($1, $2)
		ON CONFLICT (version) DO NOTHING
	`, schemaVersion, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		collection_code TEXT NOT NULL DEFAULT '',
		issuer_code TEXT NOT NULL DEFAULT '',
		publish_at TIMESTAMP NULL,
		status INTEGER NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS slides (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
		slide_no INTEGER NOT NULL,
		content_text TEXT,
		content_text_vector TEXT,
		image_path TEXT NOT NULL,
		extractor TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		ingestion_start_at TIMESTAMP NULL,
		ingestion_end_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slides_document ON slides (document_id, slide_no)`,
	`CREATE INDEX IF NOT EXISTS idx_slides_created ON slides (created_at)`,
}

func postgresSchema(dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			checksum TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			collection_code VARCHAR(50) NOT NULL DEFAULT '',
			issuer_code VARCHAR(10) NOT NULL DEFAULT '',
			publish_at TIMESTAMPTZ NULL,
			status SMALLINT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS slides (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
			slide_no INTEGER NOT NULL,
			content_text TEXT,
			content_text_vector vector(%d),
			image_path TEXT NOT NULL,
			extractor TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			ingestion_start_at TIMESTAMPTZ NULL,
			ingestion_end_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_slides_document ON slides (document_id, slide_no)`,
		`CREATE INDEX IF NOT EXISTS idx_slides_created ON slides (created_at)`,
	}
}
