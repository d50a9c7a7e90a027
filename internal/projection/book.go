// Package projection rebuilds the Postgres read model from the event log:
// load the cached row, replay every event appended since its cached
// version, fold them onto the aggregate, then reconcile the row against
// whatever existence/shape the fold produced.
package projection

import (
	"context"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
	"github.com/fedutinova/smartheart/internal/streamclient"
)

// BookRow is the cached read-model row for one book.
type BookRow struct {
	ID      uuid.UUID
	Title   string
	Amount  int32
	Version int64
}

// BookRepository is the read-model storage GetBook reconciles against.
type BookRepository interface {
	FindBookByID(ctx context.Context, id uuid.UUID) (*BookRow, error)
	CreateBook(ctx context.Context, row BookRow) error
	UpdateBook(ctx context.Context, row BookRow) error
	DeleteBook(ctx context.Context, id uuid.UUID) error
}

// GetBook returns the current projected Book for id, or nil if it does not
// exist, reconciling repo with whatever the fold produced along the way.
func GetBook(ctx context.Context, client *streamclient.Client, repo BookRepository, logicalName string, id uuid.UUID) (*domain.Book, error) {
	row, err := repo.FindBookByID(ctx, id)
	if err != nil {
		return nil, err
	}

	since := eventlog.Nothing[domain.Book]()
	var current *domain.Book
	existedBefore := row != nil
	if row != nil {
		since = eventlog.New[domain.Book](row.Version)
		current = &domain.Book{ID: row.ID, Title: row.Title, Amount: row.Amount, Version: since}
	}

	stream := eventlog.StreamForID(logicalName, id)
	records, err := eventlog.ReadSince[domain.BookEvent, domain.Book](ctx, client, stream, since)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		current = domain.ApplyBookEvent(current, id, rec.Event, rec.Version)
	}

	existsAfter := current != nil
	switch {
	case !existedBefore && existsAfter:
		if err := repo.CreateBook(ctx, bookRow(current)); err != nil {
			return nil, err
		}
	case existedBefore && existsAfter:
		if err := repo.UpdateBook(ctx, bookRow(current)); err != nil {
			return nil, err
		}
	case existedBefore && !existsAfter:
		if err := repo.DeleteBook(ctx, id); err != nil {
			return nil, err
		}
	}
	return current, nil
}

func bookRow(b *domain.Book) BookRow {
	return BookRow{ID: b.ID, Title: b.Title, Amount: b.Amount, Version: b.Version.Int64()}
}
