// Package commandworker is the consumer side of the command_worker queue:
// it turns a CommandOperation enqueued by the HTTP layer's PATCH/DELETE
// routes back into a write-model call. Every write-model failure maps to a
// Delay outcome, leaving the queue engine's retry budget to decide when to
// dead-letter rather than distinguishing transient from permanent failures
// here.
package commandworker

import (
	"context"
	"fmt"

	"github.com/fedutinova/smartheart/internal/mq"
	"github.com/fedutinova/smartheart/internal/queue"
	"github.com/fedutinova/smartheart/internal/writemodel"
)

// Module is the shared dependency bag the command_worker queue's handler
// closes over.
type Module struct {
	Books *writemodel.BookService
	Users *writemodel.UserService
}

// Handle applies one CommandOperation against the write model. It never
// returns a bare error: every write-model failure is Delay-tagged so the
// queue engine's retry/dead-letter bookkeeping governs how many times it is
// retried before landing in failed:command_worker, and an unknown operation
// kind or event kind is Fail-tagged so it is dead-lettered at once.
func Handle(ctx context.Context, module Module, op mq.CommandOperation) error {
	switch op.Kind {
	case "Book":
		return handleBook(ctx, module, op.Book)
	case "User":
		return handleUser(ctx, module, op.User)
	default:
		return queue.Fail(fmt.Errorf("commandworker: unknown operation kind %q", op.Kind))
	}
}

func handleBook(ctx context.Context, module Module, cmd mq.BookCommand) error {
	switch cmd.Event.Kind {
	case "Updated":
		_, err := module.Books.UpdateBook(ctx, cmd.ID, cmd.Event.Title, cmd.Event.Amount, cmd.Expected)
		if err != nil {
			return queue.Delay(err)
		}
		return nil
	case "Deleted":
		if err := module.Books.DeleteBook(ctx, cmd.ID, cmd.Expected); err != nil {
			return queue.Delay(err)
		}
		return nil
	default:
		return queue.Fail(fmt.Errorf("commandworker: book command carries unsupported event kind %q", cmd.Event.Kind))
	}
}

func handleUser(ctx context.Context, module Module, cmd mq.UserCommand) error {
	switch cmd.Event.Kind {
	case "Updated":
		_, err := module.Users.UpdateUser(ctx, cmd.ID, cmd.Event.Name, cmd.Event.RentLimit, cmd.Expected)
		if err != nil {
			return queue.Delay(err)
		}
		return nil
	case "Deleted":
		if err := module.Users.DeleteUser(ctx, cmd.ID, cmd.Expected); err != nil {
			return queue.Delay(err)
		}
		return nil
	default:
		return queue.Fail(fmt.Errorf("commandworker: user command carries unsupported event kind %q", cmd.Event.Kind))
	}
}
