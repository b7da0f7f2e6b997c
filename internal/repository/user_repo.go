package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-identity-service/internal/model"
)

const uniqueViolationCode = "23505"

const userColumns = `id, username, email, password_hash, first_name, last_name, role, verified,
        otp_code, otp_expires_at, reset_otp_code, reset_otp_expires_at, created_at, updated_at`

// UserRepository is the Postgres-backed user store. Uniqueness of username
// and email is enforced case-insensitively by the schema, so a Save that
// races another registration loses cleanly with a conflict.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users WHERE lower(username) = lower($1) OR lower(email) = lower($1)`,
		strings.TrimSpace(identifier))
	return scanUser(row, "find user by username or email")
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))
	return scanUser(row, "find user by email")
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username string, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM users
			WHERE lower(username) = lower($1) OR lower(email) = lower($2)
		)`,
		strings.TrimSpace(username), strings.TrimSpace(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) Save(ctx context.Context, u model.User) (model.User, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		   username = EXCLUDED.username,
		   email = EXCLUDED.email,
		   password_hash = EXCLUDED.password_hash,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   role = EXCLUDED.role,
		   verified = EXCLUDED.verified,
		   otp_code = EXCLUDED.otp_code,
		   otp_expires_at = EXCLUDED.otp_expires_at,
		   reset_otp_code = EXCLUDED.reset_otp_code,
		   reset_otp_expires_at = EXCLUDED.reset_otp_expires_at,
		   updated_at = EXCLUDED.updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.Verified,
		u.OTPCode, u.OTPExpiresAt, u.ResetOTPCode, u.ResetOTPExpiresAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return model.User{}, model.ErrUserAlreadyExists
		}
		return model.User{}, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows, "scan user")
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, op string) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.Verified, &u.OTPCode, &u.OTPExpiresAt, &u.ResetOTPCode, &u.ResetOTPExpiresAt,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
