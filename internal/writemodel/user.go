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

// UserService is the write-side handler for the User aggregate.
type UserService struct {
	db     *database.DB
	client *streamclient.Client
}

func NewUserService(db *database.DB, client *streamclient.Client) *UserService {
	return &UserService{db: db, client: client}
}

func (s *UserService) CreateUser(ctx context.Context, name string, rentLimit int32) (*domain.User, error) {
	id := uuid.New()
	stream := eventlog.StreamForID(userStreamName, id)
	if _, err := eventlog.Append[domain.UserEvent, domain.User](ctx, s.client, stream, domain.NewUserCreated(name, rentLimit), eventlog.ExpectNothing[domain.User]()); err != nil {
		return nil, err
	}

	var user *domain.User
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewUserRepository(tx)
		u, err := projection.GetUser(ctx, s.client, repo, userStreamName, id)
		user = u
		return err
	})
	return user, err
}

func (s *UserService) UpdateUser(ctx context.Context, id uuid.UUID, name *string, rentLimit *int32, expected eventlog.Version[domain.User]) (*domain.User, error) {
	stream := eventlog.StreamForID(userStreamName, id)
	if _, err := eventlog.Append[domain.UserEvent, domain.User](ctx, s.client, stream, domain.NewUserUpdated(name, rentLimit), eventlog.ExpectExact(expected)); err != nil {
		return nil, err
	}

	var user *domain.User
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewUserRepository(tx)
		u, err := projection.GetUser(ctx, s.client, repo, userStreamName, id)
		user = u
		return err
	})
	return user, err
}

func (s *UserService) DeleteUser(ctx context.Context, id uuid.UUID, expected eventlog.Version[domain.User]) error {
	stream := eventlog.StreamForID(userStreamName, id)
	if _, err := eventlog.Append[domain.UserEvent, domain.User](ctx, s.client, stream, domain.NewUserDeleted(), eventlog.ExpectExact(expected)); err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewUserRepository(tx)
		_, err := projection.GetUser(ctx, s.client, repo, userStreamName, id)
		return err
	})
}

// ListUsers pages through the read model's users table as stored.
func (s *UserService) ListUsers(ctx context.Context, limit, offset int32) ([]projection.UserRow, error) {
	var rows []projection.UserRow
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewUserRepository(tx)
		r, err := repo.FindAllUsers(ctx, limit, offset)
		rows = r
		return err
	})
	return rows, err
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user *domain.User
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewUserRepository(tx)
		u, err := projection.GetUser(ctx, s.client, repo, userStreamName, id)
		user = u
		return err
	})
	return user, err
}
