package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRentEventAppliesTo(t *testing.T) {
	bookID, userID := uuid.New(), uuid.New()
	event := NewRentRented(bookID, userID)

	assert.True(t, event.AppliesTo(bookID, userID))
	assert.False(t, event.AppliesTo(uuid.New(), userID))
	assert.False(t, event.AppliesTo(bookID, uuid.New()))
}

func TestRentEventExists(t *testing.T) {
	bookID, userID := uuid.New(), uuid.New()

	rented := NewRentRented(bookID, userID)
	assert.True(t, rented.Exists(false))

	returned := NewRentReturned(bookID, userID)
	assert.False(t, returned.Exists(true))
}

func TestRentEventJSONRoundTrip(t *testing.T) {
	bookID, userID := uuid.New(), uuid.New()
	event := NewRentReturned(bookID, userID)

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var got RentEvent
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, RentEventReturned, got.Kind)
	assert.Equal(t, bookID, got.BookID)
	assert.Equal(t, userID, got.UserID)
}

func TestRentEventUnmarshalRejectsUnknownKind(t *testing.T) {
	var got RentEvent
	err := json.Unmarshal([]byte(`{"type":"Bogus","book_id":"`+uuid.Nil.String()+`","user_id":"`+uuid.Nil.String()+`"}`), &got)
	assert.Error(t, err)
}
