// Package queue implements the durable, at-least-once message queue: a
// Redis Streams consumer group per named queue, idle-based claim-stealing
// between worker goroutines, and retry/delay/dead-letter bookkeeping in a
// pair of plain Redis hashes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/mq"
	"github.com/fedutinova/smartheart/internal/streamclient"
)

// Handler processes one dequeued payload against module (the shared
// dependency bag a queue's handler closes over, e.g. a service or
// repository). Return nil for success, Delay(err) to retry later, Fail(err)
// (or any other error) to dead-letter immediately.
type Handler[M any, T any] func(ctx context.Context, module M, data T) error

type outcome int

const (
	outcomeOK outcome = iota
	outcomeDelay
	outcomeFailed
)

// Queue is one named at-least-once queue backed by a Redis stream, consumer
// group "g:<name>", and delayed/failed diagnostic hashes. Queue is safe for
// concurrent use by its own worker goroutines and by producers calling Enqueue.
type Queue[M any, T any] struct {
	client  *streamclient.Client
	module  M
	name    string
	stream  string
	group   string
	delayed string
	failed  string
	config  mq.Config
	handler Handler[M, T]

	wg      sync.WaitGroup
	closing chan struct{}
	once    sync.Once
}

// New builds a queue named name. name must not carry the "g:", "delayed:" or
// "failed:" prefixes the engine reserves for its own derived keys.
func New[M any, T any](client *streamclient.Client, module M, name string, config mq.Config, handler Handler[M, T]) (*Queue[M, T], error) {
	for _, reserved := range []string{"g:", "delayed:", "failed:"} {
		if strings.HasPrefix(name, reserved) {
			return nil, fmt.Errorf("queue: name %q collides with reserved prefix %q", name, reserved)
		}
	}
	return &Queue[M, T]{
		client:  client,
		module:  module,
		name:    name,
		stream:  name,
		group:   "g:" + name,
		delayed: "delayed:" + name,
		failed:  "failed:" + name,
		config:  config,
		handler: handler,
		closing: make(chan struct{}),
	}, nil
}

// Enqueue appends data to the stream under a fresh application id, creating
// the consumer group first if this is the queue's first use.
func (q *Queue[M, T]) Enqueue(ctx context.Context, data T) (uuid.UUID, error) {
	if err := q.client.GroupCreate(ctx, q.stream, q.group); err != nil {
		return uuid.Nil, err
	}
	info := mq.NewQueueInfo(data)
	raw, err := json.Marshal(info)
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue: marshal %s: %w", q.name, err)
	}
	if _, err := q.client.Append(ctx, q.stream, map[string]any{"info": string(raw)}); err != nil {
		return uuid.Nil, err
	}
	return info.ID, nil
}

// StartWorkers launches config.WorkerCount worker goroutines. It returns
// immediately; workers run until ctx is cancelled or Close is called.
func (q *Queue[M, T]) StartWorkers(ctx context.Context) {
	for i := int32(0); i < q.config.WorkerCount; i++ {
		consumer := fmt.Sprintf("%s:%s", q.name, uuid.New())
		q.wg.Add(1)
		go q.worker(ctx, consumer)
	}
}

// Close signals every worker to stop dispatching new messages and waits for
// in-flight handlers to finish.
func (q *Queue[M, T]) Close() {
	q.once.Do(func() { close(q.closing) })
	q.wg.Wait()
}

func (q *Queue[M, T]) worker(ctx context.Context, consumer string) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closing:
			return
		default:
		}

		msg, deliveredCount, ok, err := q.acquire(ctx, consumer)
		if err != nil {
			slog.Error("queue acquire failed", "queue", q.name, "consumer", consumer, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			case <-q.closing:
				return
			}
			continue
		}
		if !ok {
			continue
		}
		q.process(ctx, msg, deliveredCount)
	}
}

// acquire implements the reclaim-first-then-fresh-read ordering: a message
// idle past the retry delay is claimed (its XPENDING-reported delivery count
// carries over), otherwise the next never-delivered message is read, with an
// implicit delivered count of zero.
func (q *Queue[M, T]) acquire(ctx context.Context, consumer string) (streamclient.Message, int64, bool, error) {
	if err := q.client.GroupCreate(ctx, q.stream, q.group); err != nil {
		return streamclient.Message{}, 0, false, err
	}

	pending, err := q.client.PendingIdle(ctx, q.stream, q.group, q.config.RetryDelay, 1)
	if err != nil {
		return streamclient.Message{}, 0, false, err
	}
	if len(pending) > 0 {
		p := pending[0]
		claimed, err := q.client.Claim(ctx, q.stream, q.group, consumer, q.config.RetryDelay, []string{p.ID})
		if err != nil {
			return streamclient.Message{}, 0, false, err
		}
		if len(claimed) > 0 {
			return claimed[0], p.DeliveredCount, true, nil
		}
		// Raced with a sibling worker that claimed it first; fall through
		// to a fresh read this tick instead of retrying the claim.
	}

	msgs, err := q.client.ReadNew(ctx, q.stream, q.group, consumer, 1, time.Second)
	if err != nil {
		return streamclient.Message{}, 0, false, err
	}
	if len(msgs) == 0 {
		return streamclient.Message{}, 0, false, nil
	}
	return msgs[0], 0, true, nil
}

func (q *Queue[M, T]) process(ctx context.Context, msg streamclient.Message, deliveredCount int64) {
	raw, _ := msg.Values["info"].(string)

	var info mq.QueueInfo[T]
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		slog.Error("queue decode failed", "queue", q.name, "stream_id", msg.ID, "error", err)
		q.writeFailed(ctx, uuid.New(), info.Data, fmt.Sprintf("decode error: %v", err))
		q.terminate(ctx, msg.ID, uuid.Nil, false)
		return
	}

	handlerErr := q.handler(ctx, q.module, info.Data)
	switch classify(handlerErr, deliveredCount, q.config.MaxRetry) {
	case outcomeOK:
		slog.Debug("queue message done", "queue", q.name, "id", info.ID)
		q.terminate(ctx, msg.ID, info.ID, deliveredCount > 0)
	case outcomeDelay:
		slog.Warn("queue message delayed", "queue", q.name, "id", info.ID, "delivered_count", deliveredCount, "error", handlerErr)
		q.writeDelayed(ctx, info.ID, info.Data, handlerErr.Error())
	case outcomeFailed:
		slog.Error("queue message failed", "queue", q.name, "id", info.ID, "delivered_count", deliveredCount, "error", handlerErr)
		q.writeFailed(ctx, info.ID, info.Data, handlerErr.Error())
		q.terminate(ctx, msg.ID, info.ID, deliveredCount > 0)
	}
}

// classify routes a handler outcome: delay only applies while the retry
// budget remains; everything else - an explicit Fail, an untagged error, or
// a Delay that has exhausted its budget - dead-letters.
func classify(err error, deliveredCount int64, maxRetry int32) outcome {
	if err == nil {
		return outcomeOK
	}
	if int32(deliveredCount) > maxRetry {
		return outcomeFailed
	}
	if isDelay(err) {
		return outcomeDelay
	}
	return outcomeFailed
}

// terminate acks and deletes the stream entry. An ack failure is logged and
// left alone: the entry stays pending and a sibling worker reclaims it once
// idle, so no message is silently dropped. clearDelayed removes any stale
// delayed-hash entry left over from a prior retry of the same application id.
func (q *Queue[M, T]) terminate(ctx context.Context, streamID string, appID uuid.UUID, clearDelayed bool) {
	if err := q.client.Ack(ctx, q.stream, q.group, streamID); err != nil {
		slog.Error("queue ack failed", "queue", q.name, "stream_id", streamID, "error", err)
		return
	}
	if err := q.client.Delete(ctx, q.stream, streamID); err != nil {
		slog.Error("queue delete failed", "queue", q.name, "stream_id", streamID, "error", err)
	}
	if clearDelayed && appID != uuid.Nil {
		if err := q.client.HDel(ctx, q.delayed, appID.String()); err != nil {
			slog.Error("queue clear delayed failed", "queue", q.name, "id", appID, "error", err)
		}
	}
}

func (q *Queue[M, T]) writeDelayed(ctx context.Context, id uuid.UUID, data T, stackTrace string) {
	q.writeErrored(ctx, q.delayed, id, data, stackTrace)
}

func (q *Queue[M, T]) writeFailed(ctx context.Context, id uuid.UUID, data T, stackTrace string) {
	q.writeErrored(ctx, q.failed, id, data, stackTrace)
}

func (q *Queue[M, T]) writeErrored(ctx context.Context, hash string, id uuid.UUID, data T, stackTrace string) {
	errored := mq.ErroredInfo[T]{ID: id, Data: data, StackTrace: stackTrace}
	raw, err := json.Marshal(errored)
	if err != nil {
		slog.Error("queue marshal errored info failed", "queue", q.name, "id", id, "error", err)
		return
	}
	if err := q.client.HSet(ctx, hash, id.String(), string(raw)); err != nil {
		slog.Error("queue write errored info failed", "queue", q.name, "hash", hash, "id", id, "error", err)
	}
}

// QueuedLen returns the number of entries currently on the stream
// (delivered-and-pending plus never-yet-read).
func (q *Queue[M, T]) QueuedLen(ctx context.Context) (int64, error) {
	return q.client.Len(ctx, q.stream)
}

// DelayedLen returns the number of distinct ids currently recorded as delayed.
func (q *Queue[M, T]) DelayedLen(ctx context.Context) (int64, error) {
	return q.client.HLen(ctx, q.delayed)
}

// FailedLen returns the number of distinct ids currently dead-lettered.
func (q *Queue[M, T]) FailedLen(ctx context.Context) (int64, error) {
	return q.client.HLen(ctx, q.failed)
}

// DelayedInfos returns up to size delayed entries starting at the broker
// cursor offset (not a row index - see streamclient.HScan).
func (q *Queue[M, T]) DelayedInfos(ctx context.Context, size int64, offset uint64) ([]mq.ErroredInfo[T], uint64, error) {
	return q.scanErrored(ctx, q.delayed, size, offset)
}

// FailedInfos returns up to size failed entries starting at the broker
// cursor offset (not a row index - see streamclient.HScan).
func (q *Queue[M, T]) FailedInfos(ctx context.Context, size int64, offset uint64) ([]mq.ErroredInfo[T], uint64, error) {
	return q.scanErrored(ctx, q.failed, size, offset)
}

func (q *Queue[M, T]) scanErrored(ctx context.Context, hash string, size int64, offset uint64) ([]mq.ErroredInfo[T], uint64, error) {
	raw, cursor, err := q.client.HScan(ctx, hash, offset, size)
	if err != nil {
		return nil, 0, err
	}
	out := make([]mq.ErroredInfo[T], 0, len(raw))
	for _, v := range raw {
		var errored mq.ErroredInfo[T]
		if err := json.Unmarshal([]byte(v), &errored); err != nil {
			slog.Error("queue decode errored info failed", "queue", q.name, "hash", hash, "error", err)
			continue
		}
		out = append(out, errored)
	}
	return out, cursor, nil
}

// DelayedInfo looks up a single delayed entry by application id.
func (q *Queue[M, T]) DelayedInfo(ctx context.Context, id uuid.UUID) (mq.ErroredInfo[T], bool, error) {
	return q.getErrored(ctx, q.delayed, id)
}

// FailedInfo looks up a single failed entry by application id.
func (q *Queue[M, T]) FailedInfo(ctx context.Context, id uuid.UUID) (mq.ErroredInfo[T], bool, error) {
	return q.getErrored(ctx, q.failed, id)
}

func (q *Queue[M, T]) getErrored(ctx context.Context, hash string, id uuid.UUID) (mq.ErroredInfo[T], bool, error) {
	raw, ok, err := q.client.HGet(ctx, hash, id.String())
	if err != nil || !ok {
		return mq.ErroredInfo[T]{}, false, err
	}
	var errored mq.ErroredInfo[T]
	if err := json.Unmarshal([]byte(raw), &errored); err != nil {
		return mq.ErroredInfo[T]{}, false, fmt.Errorf("queue: decode errored info %s/%s: %w", hash, id, err)
	}
	return errored, true, nil
}
