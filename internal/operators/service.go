package operators

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Signup validation errors. Their text is safe to surface to callers.
var (
	ErrMissingFields = errors.New("email and password are required")
	ErrWeakPassword  = errors.New("password must be at least 8 characters")
)

// operatorRepo is the storage interface consumed by Service.
type operatorRepo interface {
	Create(ctx context.Context, op *Operator) error
	GetByID(ctx context.Context, id uuid.UUID) (*Operator, error)
	GetByEmail(ctx context.Context, email string) (*Operator, error)
	GetByOAuth(ctx context.Context, provider, providerID string) (*Operator, error)
	LinkOAuth(ctx context.Context, operatorID uuid.UUID, provider, providerID string) error
}

// Service implements operator account management.
type Service struct {
	repo   operatorRepo
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(repo operatorRepo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Signup creates a new operator with email/password authentication.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*Operator, error) {
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if name == "" {
		name = email
	}

	op := &Operator{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
	}
	if err := s.repo.Create(ctx, op); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create operator: %w", err)
	}

	s.logger.Info("operator signed up", zap.String("operator_id", op.ID.String()))
	return op, nil
}

// Login verifies email/password credentials and returns the operator on success.
func (s *Service) Login(ctx context.Context, email, password string) (*Operator, error) {
	op, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("lookup operator: %w", err)
	}

	if op.PasswordHash == "" {
		return nil, fmt.Errorf("account uses OAuth login; password not set")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	return op, nil
}

// GetByID retrieves an operator by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Operator, error) {
	return s.repo.GetByID(ctx, id)
}

// GetOrCreateFromOAuth retrieves the operator linked to the OAuth identity,
// or creates one. Returns the operator and true if newly created.
func (s *Service) GetOrCreateFromOAuth(ctx context.Context, provider, providerID, email, name string) (*Operator, bool, error) {
	// Existing link first.
	op, err := s.repo.GetByOAuth(ctx, provider, providerID)
	if err == nil {
		return op, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup oauth operator: %w", err)
	}

	// Then by email, linking the provider to the existing account.
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if linkErr := s.repo.LinkOAuth(ctx, existing.ID, provider, providerID); linkErr != nil {
			s.logger.Warn("link oauth to existing operator",
				zap.String("operator_id", existing.ID.String()),
				zap.Error(linkErr),
			)
		}
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup by email: %w", err)
	}

	if name == "" {
		name = email
	}
	op = &Operator{
		Email: email,
		Name:  name,
	}
	if err := s.repo.Create(ctx, op); err != nil {
		return nil, false, fmt.Errorf("create oauth operator: %w", err)
	}
	if err := s.repo.LinkOAuth(ctx, op.ID, provider, providerID); err != nil {
		s.logger.Warn("link oauth after create", zap.Error(err))
	}

	s.logger.Info("operator created via oauth",
		zap.String("operator_id", op.ID.String()),
		zap.String("provider", provider),
	)
	return op, true, nil
}
