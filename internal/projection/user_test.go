package projection

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
)

type fakeUserRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]UserRow
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{rows: map[uuid.UUID]UserRow{}}
}

func (r *fakeUserRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*UserRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, row UserRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = row
	return nil
}

func (r *fakeUserRepo) UpdateUser(ctx context.Context, row UserRow) error {
	return r.CreateUser(ctx, row)
}

func (r *fakeUserRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func TestGetUserReconcilesCreateUpdateDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := newFakeUserRepo()
	id := uuid.New()
	stream := eventlog.StreamForID("projection_test_user", id)

	_, err := eventlog.Append[domain.UserEvent, domain.User](ctx, client, stream, domain.NewUserCreated("Ada", 2), eventlog.ExpectNothing[domain.User]())
	require.NoError(t, err)

	user, err := GetUser(ctx, client, repo, "projection_test_user", id)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "Ada", user.Name)
	require.EqualValues(t, 2, user.RentLimit)

	row, err := repo.FindUserByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row, "first GetUser should have created the row")

	newLimit := int32(4)
	_, err = eventlog.Append[domain.UserEvent, domain.User](ctx, client, stream, domain.NewUserUpdated(nil, &newLimit), eventlog.ExpectExact(user.Version))
	require.NoError(t, err)

	user, err = GetUser(ctx, client, repo, "projection_test_user", id)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "Ada", user.Name, "fields not touched by Updated stay put")
	require.EqualValues(t, 4, user.RentLimit)

	_, err = eventlog.Append[domain.UserEvent, domain.User](ctx, client, stream, domain.NewUserDeleted(), eventlog.ExpectExact(user.Version))
	require.NoError(t, err)

	user, err = GetUser(ctx, client, repo, "projection_test_user", id)
	require.NoError(t, err)
	require.Nil(t, user)

	row, err = repo.FindUserByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, row, "the row should be deleted once the aggregate no longer exists")
}

func TestGetUserUnknownIDReturnsNil(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := newFakeUserRepo()

	user, err := GetUser(ctx, client, repo, "projection_test_user", uuid.New())
	require.NoError(t, err)
	require.Nil(t, user)
}
