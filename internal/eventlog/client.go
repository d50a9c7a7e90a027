// Package eventlog is the append-with-expected-version / read-since-version
// event log client, implemented on the same Redis Streams broker as the
// message queue: a per-aggregate stream "{name}_{id}" for Book and User, and
// one shared stream "{name}" for the Rent relationship, which has no per-id
// isolation.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/apperr"
	"github.com/fedutinova/smartheart/internal/streamclient"
)

// StreamForID is the per-aggregate stream name for Book and User.
func StreamForID(logicalName string, id uuid.UUID) string {
	return logicalName + "_" + id.String()
}

// GlobalStream is the bare stream name for an entity with no per-id
// isolation, namely Rent.
func GlobalStream(logicalName string) string {
	return logicalName
}

// Record is one entry read back off an event stream.
type Record[Event any, Entity any] struct {
	Event     Event
	Version   Version[Entity]
	CreatedAt time.Time
}

// Append appends event to stream, enforcing expected as an optimistic
// concurrency precondition. A nil expected means "any version". Returns the
// version the stream holds after the append.
func Append[Event any, Entity any](ctx context.Context, client *streamclient.Client, stream string, event Event, expected *Expected[Entity]) (Version[Entity], error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return Version[Entity]{}, apperr.WrapInternal(fmt.Sprintf("eventlog: marshal event for %s", stream), err)
	}

	anyVersion := expected == nil
	var expectedLength int64
	if expected != nil {
		expectedLength = expected.version.Next().Int64()
	}

	_, newLen, err := client.AppendExpected(ctx, stream, expectedLength, anyVersion, map[string]any{"event": string(raw)})
	if err != nil {
		if errors.Is(err, streamclient.ErrConcurrentModification) {
			return Version[Entity]{}, apperr.WrapConcurrency(fmt.Sprintf("eventlog: append %s", stream), err)
		}
		return Version[Entity]{}, apperr.WrapInternal(fmt.Sprintf("eventlog: append %s", stream), err)
	}
	return New[Entity](newLen - 1), nil
}

// ReadSince reads every event appended after since, in stream order. A
// Nothing since reads the whole stream from the start.
func ReadSince[Event any, Entity any](ctx context.Context, client *streamclient.Client, stream string, since Version[Entity]) ([]Record[Event, Entity], error) {
	entries, err := client.Range(ctx, stream, "-", 0)
	if err != nil {
		return nil, apperr.WrapInternal(fmt.Sprintf("eventlog: read %s", stream), err)
	}

	skip := since.Int64() + 1
	if skip < 0 {
		skip = 0
	}
	if skip >= int64(len(entries)) {
		return nil, nil
	}

	out := make([]Record[Event, Entity], 0, int64(len(entries))-skip)
	for i, entry := range entries[skip:] {
		version := New[Entity](skip + int64(i))

		raw, _ := entry.Values["event"].(string)
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, apperr.WrapInternal(fmt.Sprintf("eventlog: decode event %s@%s", stream, version), err)
		}

		createdAt, err := parseEntryTime(entry.ID)
		if err != nil {
			return nil, apperr.WrapInternal(fmt.Sprintf("eventlog: parse entry id %s@%s", stream, version), err)
		}

		out = append(out, Record[Event, Entity]{Event: event, Version: version, CreatedAt: createdAt})
	}
	return out, nil
}

// Head returns the stream's current version without reading its events.
func Head[Entity any](ctx context.Context, client *streamclient.Client, stream string) (Version[Entity], error) {
	n, err := client.Len(ctx, stream)
	if err != nil {
		return Version[Entity]{}, apperr.WrapInternal(fmt.Sprintf("eventlog: len %s", stream), err)
	}
	if n == 0 {
		return Nothing[Entity](), nil
	}
	return New[Entity](n - 1), nil
}

// parseEntryTime extracts the millisecond timestamp a Redis Streams entry id
// ("<ms>-<seq>") was assigned at.
func parseEntryTime(entryID string) (time.Time, error) {
	ms, _, ok := strings.Cut(entryID, "-")
	if !ok {
		return time.Time{}, fmt.Errorf("eventlog: malformed entry id %q", entryID)
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("eventlog: malformed entry id %q: %w", entryID, err)
	}
	return time.UnixMilli(millis).UTC(), nil
}
