package users

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
	"github.com/MarcoPoloResearchLab/cins/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew   = "users.service.new"
	opCredentials  = "users.credentials"
	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingHasher   = errors.New("password hasher is required")
	noOpLogger         = zap.NewNop()

	// ErrInvalidCredentials hides whether the username or the password was wrong.
	ErrInvalidCredentials = apperr.New(apperr.KindAuth, opAuthenticate, "invalid_credentials", nil)
	// ErrUsernameTaken reports a registration for an existing username.
	ErrUsernameTaken = apperr.New(apperr.KindConflict, opRegister, "username_taken", nil)
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Hasher   auth.PasswordHasher
	Logger   *zap.Logger
}

// Service registers accounts and checks credentials.
type Service struct {
	db     *gorm.DB
	hasher auth.PasswordHasher
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(apperr.KindInternal, opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Hasher == nil {
		return nil, apperr.New(apperr.KindInternal, opServiceNew, "missing_hasher", errMissingHasher)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, hasher: cfg.Hasher, logger: logger}, nil
}

// Register creates an account and returns its identifier.
func (s *Service) Register(ctx context.Context, credentials Credentials) (int64, error) {
	username := credentials.Username()
	exists, err := s.usernameExists(ctx, username)
	if err != nil {
		s.logError(opRegister, "lookup_failed", err, zap.String("username", username))
		return 0, apperr.New(apperr.KindInternal, opRegister, "lookup_failed", err)
	}
	if exists {
		return 0, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(credentials.password)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return 0, apperr.New(apperr.KindInternal, opRegister, "hash_failed", err)
	}

	user := User{Username: username, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrUsernameTaken
		}
		// A concurrent registration may have won between the check and the insert.
		if taken, lookupErr := s.usernameExists(ctx, username); lookupErr == nil && taken {
			return 0, ErrUsernameTaken
		}
		s.logError(opRegister, "insert_failed", err, zap.String("username", username))
		return 0, apperr.New(apperr.KindInternal, opRegister, "insert_failed", err)
	}
	return user.ID, nil
}

// Authenticate returns the identifier of the account matching the credentials.
func (s *Service) Authenticate(ctx context.Context, credentials Credentials) (int64, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("username = ?", credentials.Username()).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		s.logError(opAuthenticate, "lookup_failed", err)
		return 0, apperr.New(apperr.KindInternal, opAuthenticate, "lookup_failed", err)
	}
	if !s.hasher.Verify([]byte(user.PasswordHash), credentials.password) {
		return 0, ErrInvalidCredentials
	}
	return user.ID, nil
}

func (s *Service) usernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
