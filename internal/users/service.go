package users

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"plagiarism-backend/internal/shared/auth"
)

var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrWeakPassword       = errors.New("password must be at least 8 characters with uppercase, lowercase, and numbers")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Signup creates a user with a bcrypt password hash and returns the user plus a signed token.
func (s *Service) Signup(ctx context.Context, email, username, password string) (User, string, error) {
	if s == nil || s.Repo == nil {
		return User{}, "", errors.New("users service not configured")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if email == "" || username == "" || password == "" {
		return User{}, "", errors.New("email, username, and password are required")
	}
	if !emailPattern.MatchString(email) {
		return User{}, "", ErrInvalidEmail
	}
	if !validPassword(password) {
		return User{}, "", ErrWeakPassword
	}

	if _, err := s.Repo.GetByEmail(ctx, email); err == nil {
		return User{}, "", ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, "", err
	}
	if _, err := s.Repo.GetByUsername(ctx, username); err == nil {
		return User{}, "", ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, "", err
	}

	user := User{
		ID:               uuid.NewString(),
		Email:            email,
		Username:         username,
		PasswordHash:     string(hash),
		SubscriptionPlan: "free",
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		return User{}, "", err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials and returns the user plus a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	if s == nil || s.Repo == nil {
		return User{}, "", errors.New("users service not configured")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, "", errors.New("email and password are required")
	}

	user, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, "", ErrInvalidCredentials
		}
		return User{}, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}

// UpdateProfile changes the username and/or password. Nil fields are left untouched.
func (s *Service) UpdateProfile(ctx context.Context, userID string, username, password *string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}

	user, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	if username != nil {
		next := strings.TrimSpace(*username)
		if next == "" {
			return User{}, errors.New("username cannot be empty")
		}
		if next != user.Username {
			if _, err := s.Repo.GetByUsername(ctx, next); err == nil {
				return User{}, ErrConflict
			} else if !errors.Is(err, ErrNotFound) {
				return User{}, err
			}
			user.Username = next
		}
	}

	if password != nil {
		if !validPassword(*password) {
			return User{}, ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		user.PasswordHash = string(hash)
	}

	if err := s.Repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) issueToken(user User) (string, error) {
	return auth.SignJWT(auth.Claims{
		Sub:      user.ID,
		Email:    user.Email,
		Username: user.Username,
	})
}

func validPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}
