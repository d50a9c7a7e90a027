// Package eventlog implements the append-only event log client (expected-version
// append, since-cursor read) described for the library's write path.
package eventlog

import (
	"encoding/json"
	"fmt"
)

// Version is a tagged event-stream position: either Nothing (no stream yet)
// or Exact(v) for v >= 0. The zero value is Nothing. The type parameter T
// pins a Version to one aggregate kind so a Book version can't be mistaken
// for a User version at compile time; it never appears at runtime.
type Version[T any] struct {
	value int64 // the exact version; only meaningful when exact is set
	exact bool  // false == Nothing, so the zero value is Nothing
}

// Nothing returns the sentinel "no stream" version.
func Nothing[T any]() Version[T] {
	return Version[T]{}
}

// New normalizes v into a Version, collapsing any negative value to Nothing.
func New[T any](v int64) Version[T] {
	if v < 0 {
		return Nothing[T]()
	}
	return Version[T]{value: v, exact: true}
}

// IsNothing reports whether this is the sentinel "no stream" version.
func (v Version[T]) IsNothing() bool {
	return !v.exact
}

// Int64 returns the wire representation: -1 for Nothing, the exact version otherwise.
func (v Version[T]) Int64() int64 {
	if !v.exact {
		return -1
	}
	return v.value
}

// Next returns the version one past this one; the successor of Nothing is Exact(0).
func (v Version[T]) Next() Version[T] {
	return New[T](v.Int64() + 1)
}

func (v Version[T]) String() string {
	if v.IsNothing() {
		return "Nothing"
	}
	return fmt.Sprintf("Exact(%d)", v.value)
}

func (v Version[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Int64())
}

func (v *Version[T]) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = New[T](n)
	return nil
}

// Expected is the optional expected-version precondition on an append:
// nil (the Go zero value *Expected) means "any" - append unconditionally.
type Expected[T any] struct {
	version Version[T]
}

// ExpectAny builds no precondition; use a nil *Expected[T] directly instead
// when calling Append - this constructor exists for symmetry and tests.
func ExpectAny[T any]() *Expected[T] {
	return nil
}

// ExpectNothing requires the stream to not exist yet.
func ExpectNothing[T any]() *Expected[T] {
	return &Expected[T]{version: Nothing[T]()}
}

// ExpectExact requires the stream tail to be exactly v.
func ExpectExact[T any](v Version[T]) *Expected[T] {
	return &Expected[T]{version: v}
}
