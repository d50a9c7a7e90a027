package writemodel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fedutinova/smartheart/internal/apperr"
	"github.com/fedutinova/smartheart/internal/database"
	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
	"github.com/fedutinova/smartheart/internal/projection"
	"github.com/fedutinova/smartheart/internal/repository"
	"github.com/fedutinova/smartheart/internal/streamclient"
)

// RentService is the write-side handler for the Rent relationship. Renting
// and returning both touch two streams - Book's per-id stream (to adjust
// Amount) and the shared Rent stream - inside one Postgres transaction for
// the read-model reconciliation. The Book append is checked against the
// book version just read; the Rent append is unconditional (any version).
type RentService struct {
	db     *database.DB
	client *streamclient.Client
}

func NewRentService(db *database.DB, client *streamclient.Client) *RentService {
	return &RentService{db: db, client: client}
}

// Rent records bookID as rented by userID, rejecting the request when the
// book has no copies left or the user has reached their rent limit.
func (s *RentService) Rent(ctx context.Context, bookID, userID uuid.UUID) (*domain.Rent, error) {
	var rent *domain.Rent
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		bookRepo := repository.NewBookRepository(tx)
		userRepo := repository.NewUserRepository(tx)
		rentRepo := repository.NewRentRepository(tx)

		book, err := projection.GetBook(ctx, s.client, bookRepo, bookStreamName, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return apperr.WrapNotFound("book", fmt.Errorf("%s", bookID))
		}

		user, err := projection.GetUser(ctx, s.client, userRepo, userStreamName, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return apperr.WrapNotFound("user", fmt.Errorf("%s", userID))
		}

		existing, err := projection.GetRent(ctx, s.client, rentRepo, rentStreamName, bookID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.WrapUnavailable("rent", fmt.Errorf("book %s is already rented by user %s", bookID, userID))
		}

		if book.Amount <= 0 {
			return apperr.WrapUnavailable("rent", fmt.Errorf("book %s has no copies available", bookID))
		}

		outstanding, err := rentRepo.FindRentsByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if int32(len(outstanding)) >= user.RentLimit {
			return apperr.WrapUnavailable("rent", fmt.Errorf("user %s has reached their rent limit", userID))
		}

		newAmount := book.Amount - 1
		bookStream := eventlog.StreamForID(bookStreamName, bookID)
		if _, err := eventlog.Append[domain.BookEvent, domain.Book](ctx, s.client, bookStream, domain.NewBookUpdated(nil, &newAmount), eventlog.ExpectExact(book.Version)); err != nil {
			return err
		}

		rentStream := eventlog.GlobalStream(rentStreamName)
		if _, err := eventlog.Append[domain.RentEvent, domain.Rent](ctx, s.client, rentStream, domain.NewRentRented(bookID, userID), eventlog.ExpectAny[domain.Rent]()); err != nil {
			return err
		}

		if _, err := projection.GetBook(ctx, s.client, bookRepo, bookStreamName, bookID); err != nil {
			return err
		}
		r, err := projection.GetRent(ctx, s.client, rentRepo, rentStreamName, bookID, userID)
		rent = r
		return err
	})
	return rent, err
}

// Return collapses the rent relationship and restores the book's amount.
// There is no returned_at: the book_rents row is deleted, not soft-returned.
func (s *RentService) Return(ctx context.Context, bookID, userID uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		bookRepo := repository.NewBookRepository(tx)
		rentRepo := repository.NewRentRepository(tx)

		existing, err := projection.GetRent(ctx, s.client, rentRepo, rentStreamName, bookID, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.WrapNotFound("rent", fmt.Errorf("book %s is not rented by user %s", bookID, userID))
		}

		book, err := projection.GetBook(ctx, s.client, bookRepo, bookStreamName, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return apperr.WrapNotFound("book", fmt.Errorf("%s", bookID))
		}

		newAmount := book.Amount + 1
		bookStream := eventlog.StreamForID(bookStreamName, bookID)
		if _, err := eventlog.Append[domain.BookEvent, domain.Book](ctx, s.client, bookStream, domain.NewBookUpdated(nil, &newAmount), eventlog.ExpectExact(book.Version)); err != nil {
			return err
		}

		rentStream := eventlog.GlobalStream(rentStreamName)
		if _, err := eventlog.Append[domain.RentEvent, domain.Rent](ctx, s.client, rentStream, domain.NewRentReturned(bookID, userID), eventlog.ExpectAny[domain.Rent]()); err != nil {
			return err
		}

		if _, err := projection.GetBook(ctx, s.client, bookRepo, bookStreamName, bookID); err != nil {
			return err
		}
		_, err = projection.GetRent(ctx, s.client, rentRepo, rentStreamName, bookID, userID)
		return err
	})
}

// GetRent returns the current rent relationship for (bookID, userID), or nil
// if it doesn't exist.
func (s *RentService) GetRent(ctx context.Context, bookID, userID uuid.UUID) (*domain.Rent, error) {
	var rent *domain.Rent
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewRentRepository(tx)
		r, err := projection.GetRent(ctx, s.client, repo, rentStreamName, bookID, userID)
		rent = r
		return err
	})
	return rent, err
}

// ListRentsByBook returns every outstanding rent for bookID.
func (s *RentService) ListRentsByBook(ctx context.Context, bookID uuid.UUID) ([]projection.RentRow, error) {
	var rows []projection.RentRow
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewRentRepository(tx)
		r, err := repo.FindRentsByBookID(ctx, bookID)
		rows = r
		return err
	})
	return rows, err
}

// ListRentsByUser returns every outstanding rent held by userID.
func (s *RentService) ListRentsByUser(ctx context.Context, userID uuid.UUID) ([]projection.RentRow, error) {
	var rows []projection.RentRow
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewRentRepository(tx)
		r, err := repo.FindRentsByUserID(ctx, userID)
		rows = r
		return err
	})
	return rows, err
}
