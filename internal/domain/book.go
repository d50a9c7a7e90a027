package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/eventlog"
)

// Book is the lending-library's book aggregate, the projected state of a
// per-id event stream. Value carriers are immutable after construction;
// callers get a new Book back from every Apply.
type Book struct {
	ID      uuid.UUID
	Title   string
	Amount  int32
	Version eventlog.Version[Book]
}

// BookEventKind tags which variant of BookEvent is populated.
type BookEventKind string

const (
	BookEventCreated BookEventKind = "Created"
	BookEventUpdated BookEventKind = "Updated"
	BookEventDeleted BookEventKind = "Deleted"
)

// BookEvent is the sum type {Created, Updated, Deleted} carried through the
// book event stream. Only the fields relevant to Kind are populated.
type BookEvent struct {
	Kind   BookEventKind
	Title  *string
	Amount *int32
}

func NewBookCreated(title string, amount int32) BookEvent {
	return BookEvent{Kind: BookEventCreated, Title: &title, Amount: &amount}
}

func NewBookUpdated(title *string, amount *int32) BookEvent {
	return BookEvent{Kind: BookEventUpdated, Title: title, Amount: amount}
}

func NewBookDeleted() BookEvent {
	return BookEvent{Kind: BookEventDeleted}
}

type bookEventWire struct {
	Type   BookEventKind `json:"type"`
	Title  *string       `json:"title,omitempty"`
	Amount *int32        `json:"amount,omitempty"`
}

func (e BookEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookEventWire{Type: e.Kind, Title: e.Title, Amount: e.Amount})
}

func (e *BookEvent) UnmarshalJSON(data []byte) error {
	var wire bookEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case BookEventCreated, BookEventUpdated, BookEventDeleted:
		e.Kind = wire.Type
	default:
		return fmt.Errorf("domain: unknown book event type %q", wire.Type)
	}
	e.Title = wire.Title
	e.Amount = wire.Amount
	return nil
}

// ApplyBookEvent folds event (observed on the stream for id) onto book,
// returning the new projected state. A nil *Book with a Created event yields
// a fresh Book; applying Deleted yields nil. The id comes from the stream
// key, not the event payload - book events never carry their own id.
func ApplyBookEvent(book *Book, id uuid.UUID, event BookEvent, version eventlog.Version[Book]) *Book {
	switch event.Kind {
	case BookEventCreated:
		return &Book{
			ID:      id,
			Title:   derefString(event.Title),
			Amount:  derefInt32(event.Amount),
			Version: version,
		}
	case BookEventUpdated:
		if book == nil {
			return nil
		}
		next := *book
		if event.Title != nil {
			next.Title = *event.Title
		}
		if event.Amount != nil {
			next.Amount = *event.Amount
		}
		next.Version = version
		return &next
	case BookEventDeleted:
		return nil
	default:
		return book
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
