package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, user User) error {
	const query = `
INSERT INTO users (id, email, username, password_hash, subscription_plan, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.SubscriptionPlan,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PGRepo) Update(ctx context.Context, user User) error {
	const query = `
UPDATE users
SET username = $2,
    password_hash = $3,
    subscription_plan = $4,
    updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.SubscriptionPlan,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
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

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	const query = `
SELECT id, email, username, password_hash, subscription_plan, created_at, updated_at
FROM users
WHERE id = $1
LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, userID))
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	const query = `
SELECT id, email, username, password_hash, subscription_plan, created_at, updated_at
FROM users
WHERE email = $1
LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, email))
}

func (r *PGRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	const query = `
SELECT id, email, username, password_hash, subscription_plan, created_at, updated_at
FROM users
WHERE username = $1
LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, username))
}

func (r *PGRepo) scanOne(row *sql.Row) (User, error) {
	var user User
	var plan sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&plan,
		&user.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if plan.Valid {
		user.SubscriptionPlan = plan.String
	}
	if updatedAt.Valid {
		user.UpdatedAt = updatedAt.Time
	} else {
		user.UpdatedAt = time.Now().UTC()
	}
	return user, nil
}

// isUniqueViolation matches Postgres error code 23505 without importing driver types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
