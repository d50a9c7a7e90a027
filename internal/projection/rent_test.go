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

type fakeRentRepo struct {
	mu   sync.Mutex
	rows map[[2]uuid.UUID]RentRow
}

func newFakeRentRepo() *fakeRentRepo {
	return &fakeRentRepo{rows: map[[2]uuid.UUID]RentRow{}}
}

func key(bookID, userID uuid.UUID) [2]uuid.UUID { return [2]uuid.UUID{bookID, userID} }

func (r *fakeRentRepo) FindRent(ctx context.Context, bookID, userID uuid.UUID) (*RentRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key(bookID, userID)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *fakeRentRepo) FindRentsByBookID(ctx context.Context, bookID uuid.UUID) ([]RentRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RentRow
	for k, row := range r.rows {
		if k[0] == bookID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRentRepo) FindRentsByUserID(ctx context.Context, userID uuid.UUID) ([]RentRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RentRow
	for k, row := range r.rows {
		if k[1] == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRentRepo) CreateRent(ctx context.Context, row RentRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[key(row.BookID, row.UserID)] = row
	return nil
}

func (r *fakeRentRepo) UpdateRent(ctx context.Context, row RentRow) error {
	return r.CreateRent(ctx, row)
}

func (r *fakeRentRepo) DeleteRent(ctx context.Context, bookID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, key(bookID, userID))
	return nil
}

func TestGetRentIgnoresEventsForOtherPairs(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := newFakeRentRepo()
	logicalName := "projection_test_rent_" + uuid.New().String()

	bookA, userA := uuid.New(), uuid.New()
	bookB, userB := uuid.New(), uuid.New()
	stream := eventlog.GlobalStream(logicalName)

	_, err := eventlog.Append[domain.RentEvent, domain.Rent](ctx, client, stream, domain.NewRentRented(bookB, userB), eventlog.ExpectAny[domain.Rent]())
	require.NoError(t, err)
	_, err = eventlog.Append[domain.RentEvent, domain.Rent](ctx, client, stream, domain.NewRentRented(bookA, userA), eventlog.ExpectAny[domain.Rent]())
	require.NoError(t, err)

	rent, err := GetRent(ctx, client, repo, logicalName, bookA, userA)
	require.NoError(t, err)
	require.NotNil(t, rent)
	require.Equal(t, bookA, rent.BookID)

	otherRent, err := GetRent(ctx, client, repo, logicalName, bookA, userB)
	require.NoError(t, err)
	require.Nil(t, otherRent, "bookA/userB was never rented")

	_, err = eventlog.Append[domain.RentEvent, domain.Rent](ctx, client, stream, domain.NewRentReturned(bookA, userA), eventlog.ExpectAny[domain.Rent]())
	require.NoError(t, err)

	rent, err = GetRent(ctx, client, repo, logicalName, bookA, userA)
	require.NoError(t, err)
	require.Nil(t, rent, "returning collapses the row, no returned_at soft-delete")
}
