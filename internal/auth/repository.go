package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/database"
)

// ErrEmailTaken is returned by Create when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// Repository handles user persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an auth repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// GetByEmail returns a user by email, or nil when none exists.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, nama, role, created_at, updated_at FROM users WHERE email = $1`
	var u models.User
	err := r.db.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, name string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, nama, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, nama, role, created_at, updated_at`
	var u models.User
	err := r.db.QueryRow(ctx, q, email, passwordHash, name, string(role)).
		Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}
