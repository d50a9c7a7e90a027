package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedutinova/smartheart/internal/eventlog"
)

func TestApplyBookEventCreated(t *testing.T) {
	id := uuid.New()
	v := eventlog.New[Book](0)

	got := ApplyBookEvent(nil, id, NewBookCreated("Dune", 3), v)

	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Dune", got.Title)
	assert.EqualValues(t, 3, got.Amount)
}

func TestApplyBookEventUpdatedPartial(t *testing.T) {
	id := uuid.New()
	book := &Book{ID: id, Title: "Dune", Amount: 3, Version: eventlog.New[Book](0)}

	newAmount := int32(5)
	got := ApplyBookEvent(book, id, NewBookUpdated(nil, &newAmount), eventlog.New[Book](1))

	require.NotNil(t, got)
	assert.Equal(t, "Dune", got.Title, "a nil field in the event must leave the existing value untouched")
	assert.EqualValues(t, 5, got.Amount)
}

func TestApplyBookEventDeleted(t *testing.T) {
	id := uuid.New()
	book := &Book{ID: id, Title: "Dune", Amount: 3, Version: eventlog.New[Book](0)}

	got := ApplyBookEvent(book, id, NewBookDeleted(), eventlog.New[Book](1))

	assert.Nil(t, got)
}

func TestApplyBookEventUpdateOnNilIsNoop(t *testing.T) {
	newTitle := "Ghost"
	got := ApplyBookEvent(nil, uuid.New(), NewBookUpdated(&newTitle, nil), eventlog.New[Book](1))
	assert.Nil(t, got)
}

func TestBookEventJSONRoundTrip(t *testing.T) {
	title := "Dune"
	amount := int32(3)
	event := NewBookUpdated(&title, &amount)

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var got BookEvent
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, BookEventUpdated, got.Kind)
	require.NotNil(t, got.Title)
	assert.Equal(t, title, *got.Title)
	require.NotNil(t, got.Amount)
	assert.Equal(t, amount, *got.Amount)
}

func TestBookEventUnmarshalRejectsUnknownKind(t *testing.T) {
	var got BookEvent
	err := json.Unmarshal([]byte(`{"type":"Bogus"}`), &got)
	assert.Error(t, err)
}
