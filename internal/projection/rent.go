package projection

import (
	"context"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
	"github.com/fedutinova/smartheart/internal/streamclient"
)

// RentRow is the cached read-model row for one (book, user) rent pair.
// Version tracks the last folded position on the shared global rent stream,
// not a per-pair sequence.
type RentRow struct {
	BookID  uuid.UUID
	UserID  uuid.UUID
	Version int64
}

// RentRepository is the read-model storage GetRent reconciles against, plus
// the list queries the rent relationship supports.
type RentRepository interface {
	FindRent(ctx context.Context, bookID, userID uuid.UUID) (*RentRow, error)
	FindRentsByBookID(ctx context.Context, bookID uuid.UUID) ([]RentRow, error)
	FindRentsByUserID(ctx context.Context, userID uuid.UUID) ([]RentRow, error)
	CreateRent(ctx context.Context, row RentRow) error
	UpdateRent(ctx context.Context, row RentRow) error
	DeleteRent(ctx context.Context, bookID, userID uuid.UUID) error
}

// GetRent returns the current projected Rent for (bookID, userID), or nil if
// no such rent exists, reconciling repo with whatever the fold produced.
// Every event on the global stream advances the cursor even when it doesn't
// concern this pair. The cursor is stored only in the pair's row, so a later
// call skips events already folded here while the row exists; a pair with
// no row is read from the start of the stream every time.
func GetRent(ctx context.Context, client *streamclient.Client, repo RentRepository, logicalName string, bookID, userID uuid.UUID) (*domain.Rent, error) {
	row, err := repo.FindRent(ctx, bookID, userID)
	if err != nil {
		return nil, err
	}

	since := eventlog.Nothing[domain.Rent]()
	existedBefore := row != nil
	exists := existedBefore
	if row != nil {
		since = eventlog.New[domain.Rent](row.Version)
	}

	stream := eventlog.GlobalStream(logicalName)
	records, err := eventlog.ReadSince[domain.RentEvent, domain.Rent](ctx, client, stream, since)
	if err != nil {
		return nil, err
	}

	cursor := since
	for _, rec := range records {
		cursor = rec.Version
		if rec.Event.AppliesTo(bookID, userID) {
			exists = rec.Event.Exists(exists)
		}
	}

	switch {
	case !existedBefore && exists:
		if err := repo.CreateRent(ctx, RentRow{BookID: bookID, UserID: userID, Version: cursor.Int64()}); err != nil {
			return nil, err
		}
	case existedBefore && exists:
		if cursor != since {
			if err := repo.UpdateRent(ctx, RentRow{BookID: bookID, UserID: userID, Version: cursor.Int64()}); err != nil {
				return nil, err
			}
		}
	case existedBefore && !exists:
		if err := repo.DeleteRent(ctx, bookID, userID); err != nil {
			return nil, err
		}
	}

	if !exists {
		return nil, nil
	}
	return &domain.Rent{BookID: bookID, UserID: userID, Version: cursor}, nil
}
