package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-identity-service/internal/model"
)

func TestMemoryUserRepository(t *testing.T) {
	t.Parallel()

	newUser := func(id, username, email string) model.User {
		now := time.Now().UTC()
		return model.User{
			ID:        id,
			Username:  username,
			Email:     email,
			Role:      model.RoleUser,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	t.Run("finds by username or email case-insensitively", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		ctx := context.Background()

		_, err := repo.Save(ctx, newUser("1", "Alice", "alice@example.com"))
		require.NoError(t, err)

		byUsername, err := repo.FindByUsernameOrEmail(ctx, "ALICE")
		require.NoError(t, err)
		require.Equal(t, "1", byUsername.ID)

		byEmail, err := repo.FindByUsernameOrEmail(ctx, "Alice@Example.COM")
		require.NoError(t, err)
		require.Equal(t, "1", byEmail.ID)

		_, err = repo.FindByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})

	t.Run("rejects duplicate usernames and emails", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		ctx := context.Background()

		_, err := repo.Save(ctx, newUser("1", "alice", "alice@example.com"))
		require.NoError(t, err)

		_, err = repo.Save(ctx, newUser("2", "ALICE", "other@example.com"))
		require.ErrorIs(t, err, model.ErrUserAlreadyExists)

		_, err = repo.Save(ctx, newUser("3", "bob", "ALICE@example.com"))
		require.ErrorIs(t, err, model.ErrUserAlreadyExists)
	})

	t.Run("save updates an existing record in place", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		ctx := context.Background()

		u, err := repo.Save(ctx, newUser("1", "alice", "alice@example.com"))
		require.NoError(t, err)

		u.Verified = true
		_, err = repo.Save(ctx, u)
		require.NoError(t, err)

		stored, err := repo.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.True(t, stored.Verified)
	})

	t.Run("lists users sorted by username", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		ctx := context.Background()

		_, err := repo.Save(ctx, newUser("1", "carol", "carol@example.com"))
		require.NoError(t, err)
		_, err = repo.Save(ctx, newUser("2", "alice", "alice@example.com"))
		require.NoError(t, err)

		users, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		require.Equal(t, "alice", users[0].Username)
		require.Equal(t, "carol", users[1].Username)
	})
}
