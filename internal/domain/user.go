package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/eventlog"
)

// User is the lending-library's user aggregate, projected from a per-id event stream.
type User struct {
	ID        uuid.UUID
	Name      string
	RentLimit int32
	Version   eventlog.Version[User]
}

type UserEventKind string

const (
	UserEventCreated UserEventKind = "Created"
	UserEventUpdated UserEventKind = "Updated"
	UserEventDeleted UserEventKind = "Deleted"
)

// UserEvent is the sum type {Created, Updated, Deleted} carried through the user event stream.
type UserEvent struct {
	Kind      UserEventKind
	Name      *string
	RentLimit *int32
}

func NewUserCreated(name string, rentLimit int32) UserEvent {
	return UserEvent{Kind: UserEventCreated, Name: &name, RentLimit: &rentLimit}
}

func NewUserUpdated(name *string, rentLimit *int32) UserEvent {
	return UserEvent{Kind: UserEventUpdated, Name: name, RentLimit: rentLimit}
}

func NewUserDeleted() UserEvent {
	return UserEvent{Kind: UserEventDeleted}
}

type userEventWire struct {
	Type      UserEventKind `json:"type"`
	Name      *string       `json:"name,omitempty"`
	RentLimit *int32        `json:"rent_limit,omitempty"`
}

func (e UserEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(userEventWire{Type: e.Kind, Name: e.Name, RentLimit: e.RentLimit})
}

func (e *UserEvent) UnmarshalJSON(data []byte) error {
	var wire userEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case UserEventCreated, UserEventUpdated, UserEventDeleted:
		e.Kind = wire.Type
	default:
		return fmt.Errorf("domain: unknown user event type %q", wire.Type)
	}
	e.Name = wire.Name
	e.RentLimit = wire.RentLimit
	return nil
}

// ApplyUserEvent folds event (observed on the stream for id) onto user,
// returning the new projected state.
func ApplyUserEvent(user *User, id uuid.UUID, event UserEvent, version eventlog.Version[User]) *User {
	switch event.Kind {
	case UserEventCreated:
		return &User{
			ID:        id,
			Name:      derefString(event.Name),
			RentLimit: derefInt32(event.RentLimit),
			Version:   version,
		}
	case UserEventUpdated:
		if user == nil {
			return nil
		}
		next := *user
		if event.Name != nil {
			next.Name = *event.Name
		}
		if event.RentLimit != nil {
			next.RentLimit = *event.RentLimit
		}
		next.Version = version
		return &next
	case UserEventDeleted:
		return nil
	default:
		return user
	}
}
