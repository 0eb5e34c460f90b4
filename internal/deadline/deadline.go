// internal/deadline/deadline.go
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout reports that an operation did not return before its deadline.
var ErrTimeout = errors.New("deadline: operation timeout")

type outcome[T any] struct {
	v     T
	err   error
	panic any
}

// Call runs op with a hard wall-clock bound of d.
//
// op runs on its own goroutine and receives a context that is cancelled at
// the deadline. If op ignores that context (a wedged ioctl does), Call still
// returns ErrTimeout on time and op is left to finish in the background; the
// caller must treat whatever op was using as suspect.
//
// d <= 0 disables the guard and runs op inline. The caller's own deadline on
// ctx is always preserved, so guards nest.
func Call[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		var o outcome[T]
		defer func() {
			if p := recover(); p != nil {
				o.panic = p
			}
			done <- o
		}()
		o.v, o.err = op(opCtx)
	}()

	select {
	case o := <-done:
		if o.panic != nil {
			panic(o.panic)
		}
		if o.err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			// op noticed our deadline before we did
			var zero T
			return zero, fmt.Errorf("%w after %s: %v", ErrTimeout, d, o.err)
		}
		return o.v, o.err

	case <-opCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			// outer deadline or cancellation won
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}

// Do is Call for operations without a result.
func Do(ctx context.Context, d time.Duration, op func(ctx context.Context) error) error {
	_, err := Call(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
