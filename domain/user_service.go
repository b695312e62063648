package domain

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

const (
	minPasswordLength = 8
	// bcrypt only accepts inputs up to 72 bytes.
	maxPasswordBytes = 72
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs access tokens for a user id.
type TokenIssuer interface {
	IssueToken(userID string) (string, error)
}

// UserService registers accounts and exchanges credentials for tokens.
type UserService struct {
	users  UserStorage
	hasher PasswordHasher
	issuer TokenIssuer
}

func NewUserService(users UserStorage, hasher PasswordHasher, issuer TokenIssuer) UserService {
	return UserService{users: users, hasher: hasher, issuer: issuer}
}

// Register creates an account. Emails are compared case-insensitively.
func (s UserService) Register(ctx context.Context, name, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return User{}, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}
	return s.users.CreateUser(ctx, User{Name: strings.TrimSpace(name), Email: email, PasswordHash: hash})
}

// Login verifies credentials and returns a signed token.
func (s UserService) Login(ctx context.Context, email, password string) (string, error) {
	if s.issuer == nil {
		return "", errors.New("token issuing is not configured")
	}
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issuer.IssueToken(u.ID)
}

// CanIssueTokens reports whether Login is usable.
func (s UserService) CanIssueTokens() bool {
	return s.issuer != nil
}
