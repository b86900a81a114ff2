package wsns

import (
	"runtime/debug"
	"strings"
	"sync/atomic"
)

// runChain drives a middleware chain to completion. Each middleware gets a
// next function running the rest of the chain; terminal runs after the last
// middleware. A middleware must either call next or return an error. One
// that returns nil without calling next halts the chain with
// ErrMiddlewareHalted, so a connection is never left half attached. Once the
// context is cancelled, next returns its error without advancing.
func runChain(ctx *Context, chain []*ResolvedMiddleware, terminal func() error) error {
	var step func(index int) error
	step = func(index int) error {
		// The connection may have been declined while an earlier middleware
		// was still running.
		if ctx != nil {
			if err := ctx.Context().Err(); err != nil {
				return err
			}
		}
		if index == len(chain) {
			if terminal == nil {
				return nil
			}
			return execWithRecovery(terminal)
		}

		middleware := chain[index]
		var called atomic.Bool
		next := func() error {
			if !called.CompareAndSwap(false, true) {
				return newNextCalledTwiceError(middleware.Name)
			}
			return step(index + 1)
		}

		if err := execWithRecovery(func() error {
			return middleware.Invoke(ctx, next)
		}); err != nil {
			return err
		}
		if !called.Load() {
			return newMiddlewareHaltedError(middleware.Name)
		}
		return nil
	}
	return step(0)
}

// execWithRecovery runs fn and converts a panic into a *PanicError carrying
// the stack of the panicking goroutine.
func execWithRecovery(fn func() error) (err error) {
	defer func() {
		if maybeErr := recover(); maybeErr != nil {
			stack := string(debug.Stack())
			stackLines := strings.Split(stack, "\n")
			if len(stackLines) > 6 {
				stack = strings.Join(stackLines[6:], "\n")
			}
			err = &PanicError{Value: maybeErr, Stack: stack}
		}
	}()
	return fn()
}

// callHandler invokes a resolved handler with panic recovery.
func callHandler(handler *ResolvedHandler, ctx *Context, args ...any) (result any, err error) {
	err = execWithRecovery(func() error {
		var handlerErr error
		result, handlerErr = handler.Call(ctx, args...)
		return handlerErr
	})
	return result, err
}
