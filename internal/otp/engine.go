package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"go-identity-service/internal/clock"
	"go-identity-service/internal/mailer"
	"go-identity-service/internal/model"
)

type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
)

const (
	codeDigits = 6
	codeSpace  = 1000000

	// DefaultTTL bounds how long an issued code stays redeemable.
	DefaultTTL = 10 * time.Minute
)

// UserStore is the slice of the user storage contract the engine needs.
// Per-record atomicity of Save is the store's responsibility.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Save(ctx context.Context, user model.User) (model.User, error)
}

// Engine drives the one-time code lifecycle: a code is created by Issue,
// consumed at most once by Verify, superseded by a later Issue, or left to
// die past its expiry. Codes of different purposes never share storage.
type Engine struct {
	store  UserStore
	mailer mailer.Mailer
	clock  clock.Clock
	ttl    time.Duration
}

func NewEngine(store UserStore, m mailer.Mailer, clk clock.Clock, ttl time.Duration) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Engine{store: store, mailer: m, clock: clk, ttl: ttl}
}

// Issue generates a fresh code for the given purpose, persists it on the
// user record (overwriting any previous code of that purpose) and emails it.
// The record write is the source of truth: a failed email send is logged
// and the code stays redeemable.
func (e *Engine) Issue(ctx context.Context, email string, purpose Purpose) error {
	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate one-time code: %w", err)
	}

	expiresAt := e.clock.Now().Add(e.ttl)
	switch purpose {
	case PurposeVerifyEmail:
		user.OTPCode = &code
		user.OTPExpiresAt = &expiresAt
	case PurposeResetPassword:
		user.ResetOTPCode = &code
		user.ResetOTPExpiresAt = &expiresAt
	default:
		return fmt.Errorf("unknown otp purpose %q: %w", purpose, model.ErrInvalidInput)
	}

	if _, err := e.store.Save(ctx, user); err != nil {
		return fmt.Errorf("store one-time code: %w", err)
	}

	subject, body := composeEmail(purpose, code, e.ttl)
	if err := e.mailer.Send(ctx, user.Email, subject, body); err != nil {
		slog.Warn("one-time code email failed", "email", user.Email, "purpose", string(purpose), "error", err)
	}

	return nil
}

// Verify checks a candidate code. A missing, expired or mismatched code is
// a normal false outcome, not an error. On a verify-email match the user is
// marked verified and the code cleared; a reset-password match is
// deliberately read-only so the code stays live until the actual password
// update consumes it.
func (e *Engine) Verify(ctx context.Context, email string, purpose Purpose, candidate string) (bool, error) {
	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}

	var stored *string
	var expiresAt *time.Time
	switch purpose {
	case PurposeVerifyEmail:
		stored, expiresAt = user.OTPCode, user.OTPExpiresAt
	case PurposeResetPassword:
		stored, expiresAt = user.ResetOTPCode, user.ResetOTPExpiresAt
	default:
		return false, fmt.Errorf("unknown otp purpose %q: %w", purpose, model.ErrInvalidInput)
	}

	if stored == nil || expiresAt == nil {
		return false, nil
	}
	if e.clock.Now().After(*expiresAt) {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(*stored), []byte(candidate)) != 1 {
		return false, nil
	}

	if purpose == PurposeVerifyEmail {
		user.Verified = true
		user.OTPCode = nil
		user.OTPExpiresAt = nil
		if _, err := e.store.Save(ctx, user); err != nil {
			return false, fmt.Errorf("consume one-time code: %w", err)
		}
	}

	return true, nil
}

// Regenerate re-issues a code only once the previous one has expired. The
// guard keeps one live code per purpose and stops resend-driven inbox
// flooding.
func (e *Engine) Regenerate(ctx context.Context, email string, purpose Purpose) error {
	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	switch purpose {
	case PurposeVerifyEmail:
		expiresAt = user.OTPExpiresAt
	case PurposeResetPassword:
		expiresAt = user.ResetOTPExpiresAt
	default:
		return fmt.Errorf("unknown otp purpose %q: %w", purpose, model.ErrInvalidInput)
	}

	if expiresAt != nil && e.clock.Now().Before(*expiresAt) {
		return model.ErrOTPStillValid
	}

	return e.Issue(ctx, email, purpose)
}

// generateCode draws uniformly from 000000-999999, leading zeros preserved.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func composeEmail(purpose Purpose, code string, ttl time.Duration) (subject string, body string) {
	minutes := int(ttl.Minutes())
	switch purpose {
	case PurposeResetPassword:
		subject = "Password reset code"
		body = fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.\nIf you did not request a reset, ignore this message.", code, minutes)
	default:
		subject = "Confirm your email address"
		body = fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)
	}
	return subject, body
}
