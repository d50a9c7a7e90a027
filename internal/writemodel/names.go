// Package writemodel is the command side: each handler appends one or more
// events (Book and User appends under an optimistic-concurrency
// precondition), then reconciles the read model in a Postgres transaction
// before returning.
package writemodel

const (
	bookStreamName = "book"
	userStreamName = "user"
	rentStreamName = "rent"
)
