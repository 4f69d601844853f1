package utils

import (
	"context"
	"fmt"
	"runtime/debug"

	"stop-loss-guardian/pkg/logger"
)

func ToPointer[T any](v T) *T {
	return &v
}

// GoSafe runs fn in a goroutine and logs a recovered panic to log.
func GoSafe(log *logger.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Recovered from panic",
					logger.Field("panic", r),
					logger.StringField("stack", string(debug.Stack())),
				)
			}
		}()
		fn()
	}()
}

// RunWithContext runs fn and returns as soon as either fn finishes or ctx is done. When ctx
// wins, fn keeps running in the background and its result is discarded.
func RunWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result{val: zero, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.val, r.err
	}
}
