package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fedutinova/smartheart/internal/database"
	"github.com/fedutinova/smartheart/internal/projection"
)

// UserRepository is a projection.UserRepository backed by the users table.
type UserRepository struct {
	q database.Querier
}

func NewUserRepository(q database.Querier) *UserRepository {
	return &UserRepository{q: q}
}

func (r *UserRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*projection.UserRow, error) {
	var row projection.UserRow
	err := r.q.QueryRow(ctx, `SELECT id, name, rent_limit, version FROM users WHERE id = $1`, id).
		Scan(&row.ID, &row.Name, &row.RentLimit, &row.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapErr(fmt.Sprintf("repository: find user %s", id), err)
	}
	return &row, nil
}

// FindAllUsers pages through the users table in id order, serving the read
// model as stored.
func (r *UserRepository) FindAllUsers(ctx context.Context, limit, offset int32) ([]projection.UserRow, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, name, rent_limit, version FROM users ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, database.WrapErr("repository: find all users", err)
	}
	defer rows.Close()

	var out []projection.UserRow
	for rows.Next() {
		var row projection.UserRow
		if err := rows.Scan(&row.ID, &row.Name, &row.RentLimit, &row.Version); err != nil {
			return nil, database.WrapErr("repository: scan user row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapErr("repository: iterate user rows", err)
	}
	return out, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, row projection.UserRow) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO users (id, name, rent_limit, version) VALUES ($1, $2, $3, $4)`,
		row.ID, row.Name, row.RentLimit, row.Version)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: create user %s", row.ID), err)
	}
	return nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, row projection.UserRow) error {
	_, err := r.q.Exec(ctx,
		`UPDATE users SET name = $2, rent_limit = $3, version = $4 WHERE id = $1`,
		row.ID, row.Name, row.RentLimit, row.Version)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: update user %s", row.ID), err)
	}
	return nil
}

func (r *UserRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: delete user %s", id), err)
	}
	return nil
}
