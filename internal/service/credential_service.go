package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-identity-service/internal/clock"
	"go-identity-service/internal/model"
	"go-identity-service/internal/otp"
	"go-identity-service/internal/security"
)

// UserStore is the persistence contract the credential flows depend on.
// The store enforces case-insensitive uniqueness of username and email and
// serializes concurrent writes to one record.
type UserStore interface {
	FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username string, email string) (bool, error)
	Save(ctx context.Context, user model.User) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
}

// OTPEngine is the slice of the one-time code engine these flows use.
type OTPEngine interface {
	Issue(ctx context.Context, email string, purpose otp.Purpose) error
	Verify(ctx context.Context, email string, purpose otp.Purpose, candidate string) (bool, error)
}

// TokenIssuer signs identity claims for authenticated users.
type TokenIssuer interface {
	Issue(subject string, role model.Role, ttl time.Duration) (string, error)
}

type CredentialService struct {
	store    UserStore
	hasher   security.PasswordHasher
	otp      OTPEngine
	tokens   TokenIssuer
	clock    clock.Clock
	tokenTTL time.Duration
}

func NewCredentialService(
	store UserStore,
	hasher security.PasswordHasher,
	engine OTPEngine,
	tokens TokenIssuer,
	clk clock.Clock,
	tokenTTL time.Duration,
) *CredentialService {
	if clk == nil {
		clk = clock.System{}
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}

	return &CredentialService{
		store:    store,
		hasher:   hasher,
		otp:      engine,
		tokens:   tokens,
		clock:    clk,
		tokenTTL: tokenTTL,
	}
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
}

// Register creates an unverified account and kicks off email verification.
// The created record is returned with the password hash stripped.
func (s *CredentialService) Register(ctx context.Context, input RegisterInput) (model.PublicUser, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return model.PublicUser{}, fmt.Errorf("username, email and password are required: %w", model.ErrInvalidInput)
	}
	role := input.Role
	if role == "" {
		role = model.RoleUser
	}

	exists, err := s.store.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return model.PublicUser{}, err
	}
	if exists {
		return model.PublicUser{}, model.ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return model.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         role,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.store.Save(ctx, user)
	if err != nil {
		return model.PublicUser{}, err
	}

	// The account exists either way; a failed first delivery is recoverable
	// through the regenerate endpoint once the code window lapses.
	if err := s.otp.Issue(ctx, created.Email, otp.PurposeVerifyEmail); err != nil {
		slog.Warn("verification code issue failed after registration", "email", created.Email, "error", err)
	}

	return created.Public(), nil
}

// Login authenticates by username or email. Unknown identifier and wrong
// password collapse into the same generic error so callers cannot probe
// which accounts exist.
func (s *CredentialService) Login(ctx context.Context, identifier string, password string) (model.TokenResponse, error) {
	user, err := s.store.FindByUsernameOrEmail(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.TokenResponse{}, model.ErrInvalidCredentials
		}
		return model.TokenResponse{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return model.TokenResponse{}, model.ErrInvalidCredentials
	}

	if !user.Verified {
		return model.TokenResponse{}, model.ErrNotVerified
	}

	signed, err := s.tokens.Issue(user.Username, user.Role, s.tokenTTL)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	return model.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
		User:        user.Public(),
	}, nil
}

// UpdatePasswordWithOTP consumes a reset code: only a successful password
// write clears it, so a merely checked code stays redeemable until then.
func (s *CredentialService) UpdatePasswordWithOTP(ctx context.Context, email string, code string, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, fmt.Errorf("new password is required: %w", model.ErrInvalidInput)
	}

	ok, err := s.otp.Verify(ctx, email, otp.PurposeResetPassword, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = hash
	user.ResetOTPCode = nil
	user.ResetOTPExpiresAt = nil
	user.UpdatedAt = s.clock.Now()

	if _, err := s.store.Save(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// Profile returns the stored record behind an authenticated identity.
func (s *CredentialService) Profile(ctx context.Context, username string) (model.PublicUser, error) {
	user, err := s.store.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// ListUsers returns every account with secrets stripped.
func (s *CredentialService) ListUsers(ctx context.Context) ([]model.PublicUser, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	public := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}
	return public, nil
}
