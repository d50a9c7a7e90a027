package mq

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
)

// BookCommand targets one book aggregate: the event to append, under the
// expected version the caller last observed.
type BookCommand struct {
	ID       uuid.UUID
	Event    domain.BookEvent
	Expected eventlog.Version[domain.Book]
}

// UserCommand targets one user aggregate, mirroring BookCommand.
type UserCommand struct {
	ID       uuid.UUID
	Event    domain.UserEvent
	Expected eventlog.Version[domain.User]
}

// CommandOperation is the envelope the HTTP layer enqueues onto the
// command_worker queue for asynchronous update/delete of books and users.
// Exactly one of Book/User is populated, selected by Kind.
type CommandOperation struct {
	Kind string // "Book" or "User"
	Book BookCommand
	User UserCommand
}

func CommandOperationBook(id uuid.UUID, event domain.BookEvent, expected eventlog.Version[domain.Book]) CommandOperation {
	return CommandOperation{Kind: "Book", Book: BookCommand{ID: id, Event: event, Expected: expected}}
}

func CommandOperationUser(id uuid.UUID, event domain.UserEvent, expected eventlog.Version[domain.User]) CommandOperation {
	return CommandOperation{Kind: "User", User: UserCommand{ID: id, Event: event, Expected: expected}}
}

type commandOperationWire struct {
	Kind string       `json:"kind"`
	Book *BookCommand `json:"book,omitempty"`
	User *UserCommand `json:"user,omitempty"`
}

func (c CommandOperation) MarshalJSON() ([]byte, error) {
	wire := commandOperationWire{Kind: c.Kind}
	switch c.Kind {
	case "Book":
		wire.Book = &c.Book
	case "User":
		wire.User = &c.User
	}
	return json.Marshal(wire)
}

func (c *CommandOperation) UnmarshalJSON(data []byte) error {
	var wire commandOperationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Kind {
	case "Book":
		if wire.Book == nil {
			return fmt.Errorf("mq: CommandOperation kind Book missing payload")
		}
		c.Kind = "Book"
		c.Book = *wire.Book
	case "User":
		if wire.User == nil {
			return fmt.Errorf("mq: CommandOperation kind User missing payload")
		}
		c.Kind = "User"
		c.User = *wire.User
	default:
		return fmt.Errorf("mq: unknown CommandOperation kind %q", wire.Kind)
	}
	return nil
}
