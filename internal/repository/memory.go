package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go-identity-service/internal/model"
)

// MemoryUserRepository is an in-process store with the same contract and
// uniqueness guarantees as the Postgres repository. It backs tests and the
// no-database development mode.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: map[string]model.User{}}
}

func (r *MemoryUserRepository) FindByUsernameOrEmail(_ context.Context, identifier string) (model.User, error) {
	key := normalize(identifier)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if normalize(u.Username) == key || normalize(u.Email) == key {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	key := normalize(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if normalize(u.Email) == key {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) ExistsByUsernameOrEmail(_ context.Context, username string, email string) (bool, error) {
	usernameKey := normalize(username)
	emailKey := normalize(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if normalize(u.Username) == usernameKey || normalize(u.Email) == emailKey {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryUserRepository) Save(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if normalize(existing.Username) == normalize(user.Username) ||
			normalize(existing.Email) == normalize(user.Email) {
			return model.User{}, model.ErrUserAlreadyExists
		}
	}

	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
