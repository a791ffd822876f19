// Package auth implements the credential store boundary: registration with
// one-way password hashing and login verification by exact username match.
package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"roomchat/internal/storage"
)

var (
	ErrDuplicateIdentity = errors.New("username is already taken")
	ErrUnknownUser       = errors.New("unknown user")
	ErrBadCredential     = errors.New("wrong password")
)

// Users is the part of the storage layer the credential store depends on
type Users interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	UserByUsername(ctx context.Context, username string) (storage.User, error)
}

// Service verifies and registers user identities
type Service struct {
	logger *zap.SugaredLogger
	users  Users
}

func NewService(logger *zap.SugaredLogger, users Users) *Service {
	return &Service{
		logger: logger,
		users:  users,
	}
}

// Register validates the request, hashes the password and creates the user
// record. The plaintext password is never persisted or logged.
func (s *Service) Register(ctx context.Context, username, password string) (int64, error) {
	if err := ValidateRegister(RegisterRequest{Username: username, Password: password}); err != nil {
		return 0, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	id, err := s.users.CreateUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return 0, ErrDuplicateIdentity
		}
		return 0, err
	}

	s.logger.Debugf("Registered user (%s)", username)

	return id, nil
}

// Verify checks username/password against the stored record.
// The two failure kinds stay distinct so callers can report them separately;
// collapsing them to resist enumeration is a presentation decision.
func (s *Service) Verify(ctx context.Context, username, password string) error {
	u, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			return ErrUnknownUser
		}
		return err
	}

	match, err := ComparePassword(password, u.PasswordHash)
	if err != nil {
		return err
	}
	if !match {
		return ErrBadCredential
	}

	return nil
}
