package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, file_name, original_filename, mime_type, size_bytes, storage_provider, storage_key, extracted_text_key, content_hash, char_count, created_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    user_id,
    file_name,
    original_filename,
    mime_type,
    size_bytes,
    storage_provider,
    storage_key,
    extracted_text_key,
    content_hash,
    char_count,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	originalName := doc.OriginalFilename
	if originalName == "" {
		originalName = doc.FileName
	}
	storageProvider := doc.StorageProvider
	if storageProvider == "" {
		storageProvider = "local"
	}

	var storageKey sql.NullString
	if doc.StorageKey != "" {
		storageKey = sql.NullString{String: doc.StorageKey, Valid: true}
	}
	var extractedKey sql.NullString
	if doc.ExtractedTextKey != "" {
		extractedKey = sql.NullString{String: doc.ExtractedTextKey, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.FileName,
		originalName,
		doc.MimeType,
		doc.SizeBytes,
		storageProvider,
		storageKey,
		extractedKey,
		doc.ContentHash,
		doc.CharCount,
		doc.CreatedAt,
	)
	return err
}

// GetByID fetches a document by ID for a user.
func (r *PGRepo) GetByID(ctx context.Context, userId, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND id = $2
LIMIT 1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, userId, documentID))
}

// GetByContentHash fetches a document whose extracted text hashes to contentHash.
func (r *PGRepo) GetByContentHash(ctx context.Context, userId, contentHash string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND content_hash = $2
LIMIT 1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, userId, contentHash))
}

// ListByUser lists documents ordered newest-first and returns the total count.
func (r *PGRepo) ListByUser(ctx context.Context, userId string, limit, offset int) ([]Document, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE user_id = $1`, userId).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userId, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

// Delete removes a document row. Analyses and matches cascade.
func (r *PGRepo) Delete(ctx context.Context, userId, documentID string) error {
	const query = `DELETE FROM documents WHERE user_id = $1 AND id = $2`
	res, err := r.DB.ExecContext(ctx, query, userId, documentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row *sql.Row) (Document, error) {
	doc, err := scanInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func scanDocumentRows(rows *sql.Rows) (Document, error) {
	return scanInto(rows)
}

func scanInto(scanner rowScanner) (Document, error) {
	var doc Document
	var originalName sql.NullString
	var storageProvider sql.NullString
	var storageKey sql.NullString
	var extractedKey sql.NullString
	err := scanner.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&originalName,
		&doc.MimeType,
		&doc.SizeBytes,
		&storageProvider,
		&storageKey,
		&extractedKey,
		&doc.ContentHash,
		&doc.CharCount,
		&doc.CreatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if originalName.Valid {
		doc.OriginalFilename = originalName.String
	}
	if storageProvider.Valid {
		doc.StorageProvider = storageProvider.String
	}
	if storageKey.Valid {
		doc.StorageKey = storageKey.String
	}
	if extractedKey.Valid {
		doc.ExtractedTextKey = extractedKey.String
	}
	return doc, nil
}

var _ DocumentsRepo = (*PGRepo)(nil)
