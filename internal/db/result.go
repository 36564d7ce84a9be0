package db

import "errors"

// Result carries a query outcome. Data always has the shape the caller expects;
// when the query could not run, Data is the neutral value for the operation,
// Degraded is set and Err holds the cause.
type Result[T any] struct {
	Data     T
	Degraded bool
	Err      error
}

func okResult[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

func degradedResult[T any](data T, err error) Result[T] {
	return Result[T]{Data: data, Degraded: true, Err: err}
}

// Unavailable reports whether the result degraded because no working connection
// to the backing store could be obtained, as opposed to a failing query.
func (r Result[T]) Unavailable() bool {
	return errors.Is(r.Err, ErrConnectFailed) ||
		errors.Is(r.Err, ErrAcquireTimeout) ||
		errors.Is(r.Err, ErrPoolClosed)
}
