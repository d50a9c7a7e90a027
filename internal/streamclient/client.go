// Package streamclient is the thin capability surface over a Redis-Streams
// broker that the queue engine (internal/queue) and the event log
// (internal/eventlog) are both built on: append, consumer-group read/claim,
// ack/delete, and a plain hash store for queue diagnostics.
package streamclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a *redis.Client with the narrow surface the queue engine and
// event log need. It does not expose the raw client so callers can't reach
// for commands outside this contract.
type Client struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Message is one stream entry: its broker-assigned sequence id and field values.
type Message struct {
	ID     string
	Values map[string]any
}

// PendingEntry describes one idle-but-unacknowledged delivery.
type PendingEntry struct {
	ID             string
	Consumer       string
	Idle           time.Duration
	DeliveredCount int64
}

// GroupCreate creates the consumer group at position 0, creating the stream
// if needed. Idempotent: "already exists" (BUSYGROUP) is swallowed.
func (c *Client) GroupCreate(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("streamclient: create group %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// Append appends fields to stream, broker-assigning the sequence id.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]any) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields}).Result()
	if err != nil {
		return "", fmt.Errorf("streamclient: append %s: %w", stream, err)
	}
	return id, nil
}

// ErrConcurrentModification is returned by AppendExpected when stream's
// length didn't match expectedLength, whether observed up front or detected
// by WATCH when a sibling append raced the transaction.
var ErrConcurrentModification = errors.New("streamclient: concurrent modification")

// AppendExpected appends fields to stream only if stream currently holds
// exactly expectedLength entries (ignored when any is true), using
// WATCH/MULTI so a racing append is detected even if it lands between the
// length check and the append. Returns the broker-assigned entry id and the
// stream's length after the append.
func (c *Client) AppendExpected(ctx context.Context, stream string, expectedLength int64, any bool, fields map[string]any) (string, int64, error) {
	var entryID string
	var newLen int64

	txErr := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		length, err := tx.XLen(ctx, stream).Result()
		if err != nil {
			return err
		}
		if !any && length != expectedLength {
			return ErrConcurrentModification
		}

		var addCmd *redis.StringCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			addCmd = pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields})
			return nil
		})
		if err != nil {
			return err
		}
		entryID, err = addCmd.Result()
		if err != nil {
			return err
		}
		newLen = length + 1
		return nil
	}, stream)

	if txErr != nil {
		if errors.Is(txErr, ErrConcurrentModification) || errors.Is(txErr, redis.TxFailedErr) {
			return "", 0, ErrConcurrentModification
		}
		return "", 0, fmt.Errorf("streamclient: append expected %s: %w", stream, txErr)
	}
	return entryID, newLen, nil
}

// Range reads stream entries with ids >= fromID ("-" for the beginning),
// up to count entries (0 for unbounded).
func (c *Client) Range(ctx context.Context, stream, fromID string, count int64) ([]Message, error) {
	var res []redis.XMessage
	var err error
	if count > 0 {
		res, err = c.rdb.XRangeN(ctx, stream, fromID, "+", count).Result()
	} else {
		res, err = c.rdb.XRange(ctx, stream, fromID, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("streamclient: range %s: %w", stream, err)
	}
	out := make([]Message, 0, len(res))
	for _, m := range res {
		out = append(out, Message{ID: m.ID, Values: m.Values})
	}
	return out, nil
}

// ReadNew blocks up to block for up to count messages never yet delivered to
// any consumer of group, assigning them to consumer. Returns (nil, nil) on
// timeout.
func (c *Client) ReadNew(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("streamclient: read new %s: %w", stream, err)
	}
	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, Message{ID: m.ID, Values: m.Values})
		}
	}
	return out, nil
}

// PendingIdle lists up to count pending deliveries idle for at least minIdle.
func (c *Client) PendingIdle(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingEntry, error) {
	res, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("streamclient: pending idle %s: %w", stream, err)
	}
	out := make([]PendingEntry, 0, len(res))
	for _, p := range res {
		out = append(out, PendingEntry{
			ID:             p.ID,
			Consumer:       p.Consumer,
			Idle:           p.Idle,
			DeliveredCount: p.RetryCount,
		})
	}
	return out, nil
}

// Claim transfers ownership of ids to consumer, returning their current payloads.
func (c *Client) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Message, error) {
	res, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("streamclient: claim %s: %w", stream, err)
	}
	out := make([]Message, 0, len(res))
	for _, m := range res {
		out = append(out, Message{ID: m.ID, Values: m.Values})
	}
	return out, nil
}

// Ack acknowledges ids for group, removing them from the pending list.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if err := c.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("streamclient: ack %s: %w", stream, err)
	}
	return nil
}

// Delete removes ids from stream entirely.
func (c *Client) Delete(ctx context.Context, stream string, ids ...string) error {
	if err := c.rdb.XDel(ctx, stream, ids...).Err(); err != nil {
		return fmt.Errorf("streamclient: delete %s: %w", stream, err)
	}
	return nil
}

// Len returns the stream length.
func (c *Client) Len(ctx context.Context, stream string) (int64, error) {
	n, err := c.rdb.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("streamclient: len %s: %w", stream, err)
	}
	return n, nil
}

// HSet sets field to value in the hash named name.
func (c *Client) HSet(ctx context.Context, name, field, value string) error {
	if err := c.rdb.HSet(ctx, name, field, value).Err(); err != nil {
		return fmt.Errorf("streamclient: hset %s: %w", name, err)
	}
	return nil
}

// HDel removes field from the hash named name.
func (c *Client) HDel(ctx context.Context, name, field string) error {
	if err := c.rdb.HDel(ctx, name, field).Err(); err != nil {
		return fmt.Errorf("streamclient: hdel %s: %w", name, err)
	}
	return nil
}

// HGet returns the raw value of field in hash name, or ("", false, nil) if absent.
func (c *Client) HGet(ctx context.Context, name, field string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, name, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("streamclient: hget %s: %w", name, err)
	}
	return v, true, nil
}

// HLen returns the number of fields in hash name.
func (c *Client) HLen(ctx context.Context, name string) (int64, error) {
	n, err := c.rdb.HLen(ctx, name).Result()
	if err != nil {
		return 0, fmt.Errorf("streamclient: hlen %s: %w", name, err)
	}
	return n, nil
}

// HScan returns up to size (field, value) pairs from hash name starting at
// offset. The broker's SCAN cursor semantics mean offset is an opaque Redis
// cursor, not a stable row index; HSCAN may return more than size entries,
// and the result is truncated to size here.
func (c *Client) HScan(ctx context.Context, name string, offset uint64, size int64) (map[string]string, uint64, error) {
	if size <= 0 {
		return map[string]string{}, 0, nil
	}
	keys, cursor, err := c.rdb.HScan(ctx, name, offset, "", size).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("streamclient: hscan %s: %w", name, err)
	}
	out := make(map[string]string, len(keys)/2)
	count := int64(0)
	for i := 0; i+1 < len(keys) && count < size; i += 2 {
		out[keys[i]] = keys[i+1]
		count++
	}
	return out, cursor, nil
}
