package queue

import "errors"

// ErrDelay and ErrFailed are the two handler outcome tags: a Delay-tagged
// error keeps the message pending for reclaim (subject to the retry budget);
// any other error - tagged Failed or untagged - dead-letters the message
// immediately.
var (
	ErrDelay  = errors.New("queue: delay")
	ErrFailed = errors.New("queue: failed")
)

// Delay wraps err so the worker loop treats it as a retryable outcome.
func Delay(err error) error {
	if err == nil {
		err = ErrDelay
	}
	return &taggedError{tag: ErrDelay, err: err}
}

// Fail wraps err so the worker loop dead-letters the message immediately,
// regardless of its remaining retry budget.
func Fail(err error) error {
	if err == nil {
		err = ErrFailed
	}
	return &taggedError{tag: ErrFailed, err: err}
}

type taggedError struct {
	tag error
	err error
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }
func (e *taggedError) Is(target error) bool {
	return target == e.tag
}

func isDelay(err error) bool {
	return errors.Is(err, ErrDelay)
}
