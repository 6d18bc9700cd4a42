package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/database"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/repository"
	"github.com/staybook/hotel-server-go/internal/util"
)

const minPasswordLength = 6

// ErrEmailExists and ErrInvalidCredentials return a fresh error per call so
// callers may attach a cause or details.
func ErrEmailExists() *apperrors.AppError { return apperrors.AlreadyExists("Account") }

func ErrInvalidCredentials() *apperrors.AppError { return apperrors.InvalidCredentials() }

// TxRunner runs fn inside a database transaction. *database.DB satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// AuthResult is returned by Register and Login. Token is shown once; only its
// HMAC is stored.
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

type AuthService struct {
	tx            TxRunner
	userRepo      repository.UserRepository
	sessionRepo   repository.AuthSessionRepository
	sessionSecret string
	sessionTTL    time.Duration
	now           func() time.Time
}

func NewAuthService(
	tx TxRunner,
	userRepo repository.UserRepository,
	sessionRepo repository.AuthSessionRepository,
	sessionSecret string,
	sessionTTL time.Duration,
) *AuthService {
	return &AuthService{
		tx:            tx,
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		sessionSecret: sessionSecret,
		sessionTTL:    sessionTTL,
		now:           time.Now,
	}
}

// Register creates the user and its first session in one transaction.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = util.NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if email == "" {
		return nil, apperrors.MissingRequired("email")
	}
	if password == "" {
		return nil, apperrors.MissingRequired("password")
	}
	if displayName == "" {
		return nil, apperrors.MissingRequired("displayName")
	}
	if !util.IsValidEmail(email) {
		return nil, apperrors.InvalidInput("email", "must be a valid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.InvalidInput("password", "must be at least 6 characters")
	}

	passwordHash, err := util.HashPassword(password)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password").WithCause(err)
	}
	token, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal("Failed to generate token").WithCause(err)
	}
	first, last := model.SplitDisplayName(displayName)
	expiresAt := s.now().Add(s.sessionTTL)

	var user *model.User
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.userRepo.WithTx(tx).Create(ctx, model.CreateUserParams{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: passwordHash,
			DisplayName:  displayName,
			FirstName:    first,
			LastName:     last,
		})
		if err != nil {
			return err
		}
		if _, err := s.sessionRepo.WithTx(tx).Create(ctx, model.CreateAuthSessionParams{
			ID:        uuid.NewString(),
			TokenHash: util.HmacSHA256(s.sessionSecret, token),
			UserID:    created.ID,
			ExpiresAt: expiresAt,
		}); err != nil {
			return err
		}
		user = created
		return nil
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil, ErrEmailExists()
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("userId", user.ID).Msg("user registered")
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = util.NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.MissingRequired("email")
	}
	if password == "" {
		return nil, apperrors.MissingRequired("password")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials()
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal("Failed to generate token").WithCause(err)
	}
	expiresAt := s.now().Add(s.sessionTTL)

	if _, err := s.sessionRepo.Create(ctx, model.CreateAuthSessionParams{
		ID:        uuid.NewString(),
		TokenHash: util.HmacSHA256(s.sessionSecret, token),
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, apperrors.Database(err)
	}

	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByTokenHash(ctx, util.HmacSHA256(s.sessionSecret, token)); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// ValidateToken returns the user behind an unexpired bearer token, or nil.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindActiveByTokenHash(ctx, util.HmacSHA256(s.sessionSecret, token))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return user, nil
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessionRepo.DeleteExpired(ctx)
}
