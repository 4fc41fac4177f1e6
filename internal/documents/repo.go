package documents

import "context"

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, userId, documentID string) (Document, error)
	GetByContentHash(ctx context.Context, userId, contentHash string) (Document, error)
	ListByUser(ctx context.Context, userId string, limit, offset int) ([]Document, int, error)
	Delete(ctx context.Context, userId, documentID string) error
}
