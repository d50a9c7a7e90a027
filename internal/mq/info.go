// Package mq holds the message-queue envelope types shared by the queue
// engine (internal/queue) and its handlers: the stable application-assigned
// QueueInfo envelope, the diagnostic ErroredInfo, and the tunable retry
// policy (Config).
package mq

import (
	"time"

	"github.com/google/uuid"
)

// QueueInfo is the envelope serialized into the stream's "info" field. ID is
// the application-assigned identity, stable across every retry of the same
// message; it is distinct from the broker-assigned stream sequence id used
// only for ack/delete/claim.
type QueueInfo[T any] struct {
	ID   uuid.UUID `json:"id"`
	Data T         `json:"data"`
}

// NewQueueInfo assigns a fresh application id to data.
func NewQueueInfo[T any](data T) QueueInfo[T] {
	return QueueInfo[T]{ID: uuid.New(), Data: data}
}

// ErroredInfo is stored in the delayed or failed hash, keyed by QueueInfo.ID.
type ErroredInfo[T any] struct {
	ID         uuid.UUID `json:"id"`
	Data       T         `json:"data"`
	StackTrace string    `json:"stack_trace"`
}

// Config is the per-queue retry policy.
type Config struct {
	WorkerCount int32
	MaxRetry    int32
	RetryDelay  time.Duration
}

// DefaultConfig is the stock retry policy: 4 workers, 3 retries, 180s delay.
func DefaultConfig() Config {
	return Config{WorkerCount: 4, MaxRetry: 3, RetryDelay: 180 * time.Second}
}
