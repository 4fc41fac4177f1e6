package documents

import "errors"

var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrDuplicate       = errors.New("document already uploaded")
	ErrNoReadableText  = errors.New("no readable text found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTextTooShort    = errors.New("text must be at least 50 characters")
)
