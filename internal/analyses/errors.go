package analyses

import "errors"

var (
	ErrNotFound      = errors.New("analysis not found")
	ErrAlreadyActive = errors.New("analysis already in progress or completed")
)
