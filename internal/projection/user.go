package projection

import (
	"context"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
	"github.com/fedutinova/smartheart/internal/streamclient"
)

// UserRow is the cached read-model row for one user.
type UserRow struct {
	ID        uuid.UUID
	Name      string
	RentLimit int32
	Version   int64
}

// UserRepository is the read-model storage GetUser reconciles against.
type UserRepository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*UserRow, error)
	CreateUser(ctx context.Context, row UserRow) error
	UpdateUser(ctx context.Context, row UserRow) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// GetUser returns the current projected User for id, or nil if it does not
// exist, reconciling repo with whatever the fold produced along the way.
func GetUser(ctx context.Context, client *streamclient.Client, repo UserRepository, logicalName string, id uuid.UUID) (*domain.User, error) {
	row, err := repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	since := eventlog.Nothing[domain.User]()
	var current *domain.User
	existedBefore := row != nil
	if row != nil {
		since = eventlog.New[domain.User](row.Version)
		current = &domain.User{ID: row.ID, Name: row.Name, RentLimit: row.RentLimit, Version: since}
	}

	stream := eventlog.StreamForID(logicalName, id)
	records, err := eventlog.ReadSince[domain.UserEvent, domain.User](ctx, client, stream, since)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		current = domain.ApplyUserEvent(current, id, rec.Event, rec.Version)
	}

	existsAfter := current != nil
	switch {
	case !existedBefore && existsAfter:
		if err := repo.CreateUser(ctx, userRow(current)); err != nil {
			return nil, err
		}
	case existedBefore && existsAfter:
		if err := repo.UpdateUser(ctx, userRow(current)); err != nil {
			return nil, err
		}
	case existedBefore && !existsAfter:
		if err := repo.DeleteUser(ctx, id); err != nil {
			return nil, err
		}
	}
	return current, nil
}

func userRow(u *domain.User) UserRow {
	return UserRow{ID: u.ID, Name: u.Name, RentLimit: u.RentLimit, Version: u.Version.Int64()}
}
