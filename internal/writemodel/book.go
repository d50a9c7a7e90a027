package writemodel

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fedutinova/smartheart/internal/database"
	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
	"github.com/fedutinova/smartheart/internal/projection"
	"github.com/fedutinova/smartheart/internal/repository"
	"github.com/fedutinova/smartheart/internal/streamclient"
)

// BookService is the write-side handler for the Book aggregate.
type BookService struct {
	db     *database.DB
	client *streamclient.Client
}

func NewBookService(db *database.DB, client *streamclient.Client) *BookService {
	return &BookService{db: db, client: client}
}

// CreateBook appends a Created event under a fresh id and returns the
// projected aggregate.
func (s *BookService) CreateBook(ctx context.Context, title string, amount int32) (*domain.Book, error) {
	id := uuid.New()
	stream := eventlog.StreamForID(bookStreamName, id)
	if _, err := eventlog.Append[domain.BookEvent, domain.Book](ctx, s.client, stream, domain.NewBookCreated(title, amount), eventlog.ExpectNothing[domain.Book]()); err != nil {
		return nil, err
	}

	var book *domain.Book
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewBookRepository(tx)
		b, err := projection.GetBook(ctx, s.client, repo, bookStreamName, id)
		book = b
		return err
	})
	return book, err
}

// UpdateBook appends an Updated event under expected, the caller's
// last-observed version, and returns the reconciled aggregate.
func (s *BookService) UpdateBook(ctx context.Context, id uuid.UUID, title *string, amount *int32, expected eventlog.Version[domain.Book]) (*domain.Book, error) {
	stream := eventlog.StreamForID(bookStreamName, id)
	if _, err := eventlog.Append[domain.BookEvent, domain.Book](ctx, s.client, stream, domain.NewBookUpdated(title, amount), eventlog.ExpectExact(expected)); err != nil {
		return nil, err
	}

	var book *domain.Book
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewBookRepository(tx)
		b, err := projection.GetBook(ctx, s.client, repo, bookStreamName, id)
		book = b
		return err
	})
	return book, err
}

// DeleteBook appends a Deleted event under expected.
func (s *BookService) DeleteBook(ctx context.Context, id uuid.UUID, expected eventlog.Version[domain.Book]) error {
	stream := eventlog.StreamForID(bookStreamName, id)
	if _, err := eventlog.Append[domain.BookEvent, domain.Book](ctx, s.client, stream, domain.NewBookDeleted(), eventlog.ExpectExact(expected)); err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewBookRepository(tx)
		_, err := projection.GetBook(ctx, s.client, repo, bookStreamName, id)
		return err
	})
}

// ListBooks pages through the read model's books table as stored, without
// rehydrating each row from its event stream first.
func (s *BookService) ListBooks(ctx context.Context, limit, offset int32) ([]projection.BookRow, error) {
	var rows []projection.BookRow
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewBookRepository(tx)
		r, err := repo.FindAllBooks(ctx, limit, offset)
		rows = r
		return err
	})
	return rows, err
}

// GetBook returns the current projected Book, reconciling the read model
// along the way.
func (s *BookService) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	var book *domain.Book
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewBookRepository(tx)
		b, err := projection.GetBook(ctx, s.client, repo, bookStreamName, id)
		book = b
		return err
	})
	return book, err
}
