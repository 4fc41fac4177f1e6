package users

import "context"

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "user not found" }

var ErrConflict = errConflict{}

type errConflict struct{}

func (errConflict) Error() string { return "user already exists" }

type Repo interface {
	Create(ctx context.Context, user User) error
	Update(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}
