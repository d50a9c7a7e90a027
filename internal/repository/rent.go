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

// RentRepository is a projection.RentRepository backed by the book_rents
// table, plus the supplemented by-book/by-user list queries.
type RentRepository struct {
	q database.Querier
}

func NewRentRepository(q database.Querier) *RentRepository {
	return &RentRepository{q: q}
}

func (r *RentRepository) FindRent(ctx context.Context, bookID, userID uuid.UUID) (*projection.RentRow, error) {
	var row projection.RentRow
	err := r.q.QueryRow(ctx,
		`SELECT book_id, user_id, version FROM book_rents WHERE book_id = $1 AND user_id = $2`,
		bookID, userID).Scan(&row.BookID, &row.UserID, &row.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapErr(fmt.Sprintf("repository: find rent %s/%s", bookID, userID), err)
	}
	return &row, nil
}

func (r *RentRepository) FindRentsByBookID(ctx context.Context, bookID uuid.UUID) ([]projection.RentRow, error) {
	rows, err := r.q.Query(ctx, `SELECT book_id, user_id, version FROM book_rents WHERE book_id = $1`, bookID)
	if err != nil {
		return nil, database.WrapErr(fmt.Sprintf("repository: find rents by book %s", bookID), err)
	}
	defer rows.Close()
	return scanRentRows(rows)
}

func (r *RentRepository) FindRentsByUserID(ctx context.Context, userID uuid.UUID) ([]projection.RentRow, error) {
	rows, err := r.q.Query(ctx, `SELECT book_id, user_id, version FROM book_rents WHERE user_id = $1`, userID)
	if err != nil {
		return nil, database.WrapErr(fmt.Sprintf("repository: find rents by user %s", userID), err)
	}
	defer rows.Close()
	return scanRentRows(rows)
}

func scanRentRows(rows pgx.Rows) ([]projection.RentRow, error) {
	var out []projection.RentRow
	for rows.Next() {
		var row projection.RentRow
		if err := rows.Scan(&row.BookID, &row.UserID, &row.Version); err != nil {
			return nil, database.WrapErr("repository: scan rent row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapErr("repository: iterate rent rows", err)
	}
	return out, nil
}

func (r *RentRepository) CreateRent(ctx context.Context, row projection.RentRow) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO book_rents (book_id, user_id, version) VALUES ($1, $2, $3)`,
		row.BookID, row.UserID, row.Version)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: create rent %s/%s", row.BookID, row.UserID), err)
	}
	return nil
}

func (r *RentRepository) UpdateRent(ctx context.Context, row projection.RentRow) error {
	_, err := r.q.Exec(ctx,
		`UPDATE book_rents SET version = $3 WHERE book_id = $1 AND user_id = $2`,
		row.BookID, row.UserID, row.Version)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: update rent %s/%s", row.BookID, row.UserID), err)
	}
	return nil
}

func (r *RentRepository) DeleteRent(ctx context.Context, bookID, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM book_rents WHERE book_id = $1 AND user_id = $2`, bookID, userID)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: delete rent %s/%s", bookID, userID), err)
	}
	return nil
}
