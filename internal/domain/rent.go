package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/eventlog"
)

// Rent is the existing-or-not relationship between a Book and a User. There
// is no returned_at: a return collapses the row, it is never soft-deleted.
// Rent events live on one global stream (no per-id isolation), so Version
// tracks the last global event position folded into this projection, not a
// per-pair sequence.
type Rent struct {
	BookID  uuid.UUID
	UserID  uuid.UUID
	Version eventlog.Version[Rent]
}

type RentEventKind string

const (
	RentEventRented   RentEventKind = "Rented"
	RentEventReturned RentEventKind = "Returned"
)

// RentEvent is the sum type {Rented, Returned} carried on the single global rent stream.
type RentEvent struct {
	Kind   RentEventKind
	BookID uuid.UUID
	UserID uuid.UUID
}

func NewRentRented(bookID, userID uuid.UUID) RentEvent {
	return RentEvent{Kind: RentEventRented, BookID: bookID, UserID: userID}
}

func NewRentReturned(bookID, userID uuid.UUID) RentEvent {
	return RentEvent{Kind: RentEventReturned, BookID: bookID, UserID: userID}
}

type rentEventWire struct {
	Type   RentEventKind `json:"type"`
	BookID uuid.UUID     `json:"book_id"`
	UserID uuid.UUID     `json:"user_id"`
}

func (e RentEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(rentEventWire{Type: e.Kind, BookID: e.BookID, UserID: e.UserID})
}

func (e *RentEvent) UnmarshalJSON(data []byte) error {
	var wire rentEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case RentEventRented, RentEventReturned:
		e.Kind = wire.Type
	default:
		return fmt.Errorf("domain: unknown rent event type %q", wire.Type)
	}
	e.BookID = wire.BookID
	e.UserID = wire.UserID
	return nil
}

// AppliesTo reports whether event concerns this exact (bookID, userID) pair;
// events for other pairs still advance the stream cursor but don't change
// this pair's existence.
func (e RentEvent) AppliesTo(bookID, userID uuid.UUID) bool {
	return e.BookID == bookID && e.UserID == userID
}

// Exists reports whether, given the current existence and a matching event,
// the pair exists afterward.
func (e RentEvent) Exists(current bool) bool {
	switch e.Kind {
	case RentEventRented:
		return true
	case RentEventReturned:
		return false
	default:
		return current
	}
}
