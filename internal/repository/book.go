// Package repository is the Postgres read-model store: plain CRUD over the
// books, users and book_rents tables the projection package reconciles
// against. None of it touches the event log.
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

// BookRepository is a projection.BookRepository backed by the books table.
type BookRepository struct {
	q database.Querier
}

func NewBookRepository(q database.Querier) *BookRepository {
	return &BookRepository{q: q}
}

func (r *BookRepository) FindBookByID(ctx context.Context, id uuid.UUID) (*projection.BookRow, error) {
	var row projection.BookRow
	err := r.q.QueryRow(ctx, `SELECT id, title, amount, version FROM books WHERE id = $1`, id).
		Scan(&row.ID, &row.Title, &row.Amount, &row.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapErr(fmt.Sprintf("repository: find book %s", id), err)
	}
	return &row, nil
}

// FindAllBooks pages through the books table in id order. It serves the read
// model as stored; rows lag until their per-id read path reconciles them.
func (r *BookRepository) FindAllBooks(ctx context.Context, limit, offset int32) ([]projection.BookRow, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, title, amount, version FROM books ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, database.WrapErr("repository: find all books", err)
	}
	defer rows.Close()

	var out []projection.BookRow
	for rows.Next() {
		var row projection.BookRow
		if err := rows.Scan(&row.ID, &row.Title, &row.Amount, &row.Version); err != nil {
			return nil, database.WrapErr("repository: scan book row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapErr("repository: iterate book rows", err)
	}
	return out, nil
}

func (r *BookRepository) CreateBook(ctx context.Context, row projection.BookRow) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO books (id, title, amount, version) VALUES ($1, $2, $3, $4)`,
		row.ID, row.Title, row.Amount, row.Version)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: create book %s", row.ID), err)
	}
	return nil
}

func (r *BookRepository) UpdateBook(ctx context.Context, row projection.BookRow) error {
	_, err := r.q.Exec(ctx,
		`UPDATE books SET title = $2, amount = $3, version = $4 WHERE id = $1`,
		row.ID, row.Title, row.Amount, row.Version)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: update book %s", row.ID), err)
	}
	return nil
}

func (r *BookRepository) DeleteBook(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return database.WrapErr(fmt.Sprintf("repository: delete book %s", id), err)
	}
	return nil
}
