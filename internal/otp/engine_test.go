package otp

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-identity-service/internal/model"
	"go-identity-service/internal/repository"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) Send(_ context.Context, to string, subject string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func codeFromMail(t *testing.T, mail sentMail) string {
	t.Helper()
	match := codePattern.FindStringSubmatch(mail.Body)
	require.Len(t, match, 2, "mail body should carry a 6-digit code: %s", mail.Body)
	return match[1]
}

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryUserRepository, *recordingMailer, *manualClock) {
	t.Helper()

	store := repository.NewMemoryUserRepository()
	mail := &recordingMailer{}
	clk := &manualClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	engine := NewEngine(store, mail, clk, DefaultTTL)

	_, err := store.Save(context.Background(), model.User{
		ID:       "user-1",
		Username: "alice",
		Email:    "alice@example.com",
		Role:     model.RoleUser,
	})
	require.NoError(t, err)

	return engine, store, mail, clk
}

func TestIssue(t *testing.T) {
	t.Parallel()

	t.Run("stores a 6-digit code with expiry and emails it", func(t *testing.T) {
		engine, store, mail, clk := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))

		user, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user.OTPCode)
		require.Len(t, *user.OTPCode, 6)
		require.NotNil(t, user.OTPExpiresAt)
		require.Equal(t, clk.Now().Add(DefaultTTL), *user.OTPExpiresAt)
		require.Nil(t, user.ResetOTPCode)

		delivered := mail.last(t)
		require.Equal(t, "alice@example.com", delivered.To)
		require.Contains(t, delivered.Body, *user.OTPCode)
	})

	t.Run("reset codes live in their own fields", func(t *testing.T) {
		engine, store, mail, _ := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))
		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeResetPassword))

		user, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user.OTPCode)
		require.NotNil(t, user.ResetOTPCode)
		require.Contains(t, mail.last(t).Subject, "reset")
	})

	t.Run("fails for an unknown address", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)

		err := engine.Issue(context.Background(), "nobody@example.com", PurposeVerifyEmail)
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})

	t.Run("a failed email send does not undo the stored code", func(t *testing.T) {
		engine, store, mail, _ := newTestEngine(t)
		mail.fail = errors.New("smtp unreachable")

		require.NoError(t, engine.Issue(context.Background(), "alice@example.com", PurposeVerifyEmail))

		user, err := store.FindByEmail(context.Background(), "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user.OTPCode)
	})

	t.Run("a new issue supersedes the previous unexpired code", func(t *testing.T) {
		engine, _, mail, _ := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))
		oldCode := codeFromMail(t, mail.last(t))

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))

		ok, err := engine.Verify(ctx, "alice@example.com", PurposeVerifyEmail, oldCode)
		require.NoError(t, err)
		if oldCode == codeFromMail(t, mail.last(t)) {
			// One-in-a-million collision between draws; the old code then
			// legitimately still matches.
			require.True(t, ok)
			return
		}
		require.False(t, ok)
	})
}

func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("marks the user verified and consumes the code", func(t *testing.T) {
		engine, store, mail, _ := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))
		code := codeFromMail(t, mail.last(t))

		ok, err := engine.Verify(ctx, "alice@example.com", PurposeVerifyEmail, code)
		require.NoError(t, err)
		require.True(t, ok)

		user, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.True(t, user.Verified)
		require.Nil(t, user.OTPCode)
		require.Nil(t, user.OTPExpiresAt)

		// Replay of the consumed code fails: nothing is stored anymore.
		ok, err = engine.Verify(ctx, "alice@example.com", PurposeVerifyEmail, code)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("wrong candidate is a normal false outcome", func(t *testing.T) {
		engine, store, mail, _ := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))
		code := codeFromMail(t, mail.last(t))
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}

		ok, err := engine.Verify(ctx, "alice@example.com", PurposeVerifyEmail, wrong)
		require.NoError(t, err)
		require.False(t, ok)

		// The stored code survives a failed attempt.
		user, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user.OTPCode)
	})

	t.Run("expired code is a normal false outcome", func(t *testing.T) {
		engine, _, mail, clk := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))
		code := codeFromMail(t, mail.last(t))

		clk.Advance(DefaultTTL + time.Second)
		ok, err := engine.Verify(ctx, "alice@example.com", PurposeVerifyEmail, code)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("no stored code is a normal false outcome", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)

		ok, err := engine.Verify(context.Background(), "alice@example.com", PurposeVerifyEmail, "123456")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("reset-password verification leaves the code stored", func(t *testing.T) {
		engine, store, mail, _ := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeResetPassword))
		code := codeFromMail(t, mail.last(t))

		ok, err := engine.Verify(ctx, "alice@example.com", PurposeResetPassword, code)
		require.NoError(t, err)
		require.True(t, ok)

		user, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user.ResetOTPCode)
		require.False(t, user.Verified)
	})

	t.Run("fails for an unknown address", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)

		_, err := engine.Verify(context.Background(), "nobody@example.com", PurposeVerifyEmail, "123456")
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})
}

func TestRegenerate(t *testing.T) {
	t.Parallel()

	t.Run("refuses while the previous code is still valid", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))

		err := engine.Regenerate(ctx, "alice@example.com", PurposeVerifyEmail)
		require.ErrorIs(t, err, model.ErrOTPStillValid)
	})

	t.Run("issues a fresh code after expiry", func(t *testing.T) {
		engine, store, mail, clk := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Issue(ctx, "alice@example.com", PurposeVerifyEmail))
		clk.Advance(DefaultTTL + time.Second)

		require.NoError(t, engine.Regenerate(ctx, "alice@example.com", PurposeVerifyEmail))

		user, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user.OTPCode)
		require.Equal(t, clk.Now().Add(DefaultTTL), *user.OTPExpiresAt)
		require.Contains(t, mail.last(t).Body, *user.OTPCode)
	})

	t.Run("behaves like issue when no code was ever stored", func(t *testing.T) {
		engine, store, _, _ := newTestEngine(t)
		ctx := context.Background()

		require.NoError(t, engine.Regenerate(ctx, "alice@example.com", PurposeResetPassword))

		user, err := store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, user.ResetOTPCode)
	})
}

func TestGenerateCode(t *testing.T) {
	t.Parallel()

	t.Run("always six digits with leading zeros preserved", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			code, err := generateCode()
			require.NoError(t, err)
			require.Len(t, code, 6)
			require.True(t, strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' }) == -1,
				"code must be numeric: %s", code)
		}
	})
}
