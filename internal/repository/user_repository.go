package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

type UserRepository struct {
	DB *db.Postgres
}

var (
	_ ports.UserFinder    = UserRepository{}
	_ ports.ActorResolver = UserRepository{}
)

type CreateUserParams struct {
	BusinessID   int64
	Name         string
	Email        string
	Role         domain.UserRole
	PasswordHash *string
}

const userColumns = `id, business_id, name, email, role, password_hash, created_at, updated_at`

// Create inserts a user. An existing email is left untouched and reported as
// a duplicate.
func (r UserRepository) Create(ctx context.Context, p CreateUserParams) (*domain.User, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		INSERT INTO users (business_id, name, email, role, password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5, now(), now())
		RETURNING `+userColumns,
		p.BusinessID, p.Name, strings.ToLower(p.Email), string(p.Role), p.PasswordHash)
	return scanUser(row)
}

func (r UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email=$1 AND deleted_at IS NULL
	`, strings.ToLower(email))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r UserRepository) GetByID(ctx context.Context, scope domain.Scope, id int64) (*domain.User, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id=$1 AND business_id=$2 AND deleted_at IS NULL
	`, id, scope.BusinessID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// DisplayName resolves the name snapshotted on sales, movements and payments.
func (r UserRepository) DisplayName(ctx context.Context, scope domain.Scope, userID int64) (string, error) {
	u, err := r.GetByID(ctx, scope, userID)
	if err != nil {
		return "", fmt.Errorf("user %d: %w", userID, err)
	}
	return u.Name, nil
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(
		&u.ID,
		&u.BusinessID,
		&u.Name,
		&u.Email,
		&role,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = domain.UserRole(role)
	return &u, nil
}
