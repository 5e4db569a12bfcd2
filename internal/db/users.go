package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"urban-issue-service/internal/models"
)

// ErrConflict is returned when a unique value is already taken.
var ErrConflict = errors.New("already exists")

const uniqueViolation = "23505"

// CreateUser stores a new account. Taken emails wrap ErrConflict.
func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleCitizen
	}
	err := d.Pool.QueryRow(ctx, `
	INSERT INTO users (id, name, email, password_hash, role, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	RETURNING created_at`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
	).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UserByEmail looks up an account for sign-in.
func (d *DB) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	var role string
	err := d.Pool.QueryRow(ctx, `
	SELECT id, name, email, password_hash, role, created_at
	FROM users
	WHERE email = $1`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

// EnsureAdmin creates the bootstrap administrator, or promotes the existing
// account with that email. An existing password is left untouched.
func (d *DB) EnsureAdmin(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Role = models.RoleAdmin
	err := d.Pool.QueryRow(ctx, `
	INSERT INTO users (id, name, email, password_hash, role, created_at)
	VALUES ($1, $2, $3, $4, 'admin', NOW())
	ON CONFLICT (email) DO UPDATE SET role = 'admin'
	RETURNING id, created_at`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to ensure admin: %w", err)
	}
	return nil
}
