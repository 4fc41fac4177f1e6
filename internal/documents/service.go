package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"plagiarism-backend/internal/extract"
	"plagiarism-backend/internal/shared/storage/object"
	"plagiarism-backend/internal/shared/telemetry"
	"plagiarism-backend/internal/shared/util"
)

const (
	// Extracted text longer than this is truncated before hashing and analysis.
	maxTextLength = 200000
	minTextLength = 50
)

var allowedExtensions = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".docx": true,
}

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  DocumentsRepo
}

// Upload saves the file to object storage, extracts its text, and records the document.
// A document whose extracted text matches an earlier upload by the same user is
// rejected with ErrDuplicate; the earlier document is returned alongside the error.
func (s *Service) Upload(ctx context.Context, userId, fileName string, r io.Reader) (Document, error) {
	if fileName == "" {
		return Document{}, ErrInvalidInput
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, userId, fileName, r)
	if err != nil {
		return Document{}, err
	}

	text, err := extract.ExtractText(ctx, s.Store, storageKey, mimeType, fileName)
	if err != nil {
		s.discard(ctx, storageKey, "")
		return Document{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.discard(ctx, storageKey, storageKey+".extracted.txt")
		return Document{}, ErrNoReadableText
	}
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}
	// The stored object must hold exactly the text that was hashed and
	// counted, so trimming and truncation are written back.
	extractedKey := storageKey + ".extracted.txt"
	if _, err := s.Store.SaveWithKey(ctx, extractedKey, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		s.discard(ctx, storageKey, extractedKey)
		return Document{}, err
	}

	contentHash := util.ContentFingerprint(text)
	if existing, err := s.Repo.GetByContentHash(ctx, userId, contentHash); err == nil {
		s.discard(ctx, storageKey, storageKey+".extracted.txt")
		return existing, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return Document{}, err
	}

	doc := Document{
		ID:               uuid.NewString(),
		UserID:           userId,
		FileName:         fileName,
		OriginalFilename: fileName,
		MimeType:         mimeType,
		SizeBytes:        size,
		StorageKey:       storageKey,
		ExtractedTextKey: storageKey + ".extracted.txt",
		ContentHash:      contentHash,
		CharCount:        len(text),
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		s.discard(ctx, doc.StorageKey, doc.ExtractedTextKey)
		return Document{}, err
	}

	return doc, nil
}

// SubmitText records raw pasted text as a document.
func (s *Service) SubmitText(ctx context.Context, userId, title, text string) (Document, error) {
	text = strings.TrimSpace(text)
	if len(text) < minTextLength {
		return Document{}, ErrTextTooShort
	}
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}

	contentHash := util.ContentFingerprint(text)
	if existing, err := s.Repo.GetByContentHash(ctx, userId, contentHash); err == nil {
		return existing, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return Document{}, err
	}

	if strings.TrimSpace(title) == "" {
		title = "Untitled Text"
	}
	fileName := fmt.Sprintf("text_%s.txt", contentHash[:12])

	storageKey, size, _, err := s.Store.Save(ctx, userId, fileName, strings.NewReader(text))
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:               uuid.NewString(),
		UserID:           userId,
		FileName:         fileName,
		OriginalFilename: title,
		MimeType:         "text/plain",
		SizeBytes:        size,
		StorageKey:       storageKey,
		ExtractedTextKey: storageKey,
		ContentHash:      contentHash,
		CharCount:        len(text),
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		s.discard(ctx, storageKey, "")
		return Document{}, err
	}

	return doc, nil
}

// Get returns a document owned by the user.
func (s *Service) Get(ctx context.Context, userId, documentID string) (Document, error) {
	if userId == "" || documentID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, userId, documentID)
}

// List returns documents for a user, newest first, plus the total count.
func (s *Service) List(ctx context.Context, userId string, limit, offset int) ([]Document, int, error) {
	if userId == "" {
		return nil, 0, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userId, limit, offset)
}

// Text loads the extracted text for a document from object storage.
func (s *Service) Text(ctx context.Context, doc Document) (string, error) {
	key := doc.ExtractedTextKey
	if key == "" {
		key = doc.StorageKey
	}
	if key == "" {
		return "", ErrNoReadableText
	}
	body, err := s.Store.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open extracted text key=%s: %w", key, err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read extracted text key=%s: %w", key, err)
	}
	return string(raw), nil
}

// Delete removes a document and its stored objects.
func (s *Service) Delete(ctx context.Context, userId, documentID string) error {
	doc, err := s.Repo.GetByID(ctx, userId, documentID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, userId, documentID); err != nil {
		return err
	}
	s.discard(ctx, doc.StorageKey, doc.ExtractedTextKey)
	return nil
}

// discard removes stored objects, logging failures rather than propagating them.
func (s *Service) discard(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.Store.Delete(ctx, key); err != nil {
			telemetry.Error("document object delete failed", map[string]any{
				"storageKey": key,
				"error":      err.Error(),
			})
		}
	}
}
