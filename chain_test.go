package wsns

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainOf(handlers ...MiddlewareFunc) []*ResolvedMiddleware {
	chain := make([]*ResolvedMiddleware, 0, len(handlers))
	for i, handler := range handlers {
		chain = append(chain, &ResolvedMiddleware{
			Name:    string(rune('a' + i)),
			Kind:    FunctionMiddleware,
			Args:    []string{},
			Handler: handler,
		})
	}
	return chain
}

func TestRunChain(t *testing.T) {
	calls := []string{}
	chain := chainOf(
		func(ctx *Context, next Next, args ...string) error {
			calls = append(calls, "a:before")
			err := next()
			calls = append(calls, "a:after")
			return err
		},
		func(ctx *Context, next Next, args ...string) error {
			calls = append(calls, "b")
			return next()
		},
	)

	err := runChain(nil, chain, func() error {
		calls = append(calls, "terminal")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a:before", "b", "terminal", "a:after"}, calls)
}

func TestRunChainEmpty(t *testing.T) {
	assert.NoError(t, runChain(nil, nil, nil))

	terminalErr := errors.New("terminal")
	assert.Equal(t, terminalErr, runChain(nil, nil, func() error { return terminalErr }))
}

func TestRunChainError(t *testing.T) {
	failure := errors.New("declined")
	reached := false

	chain := chainOf(
		func(ctx *Context, next Next, args ...string) error {
			return failure
		},
		func(ctx *Context, next Next, args ...string) error {
			reached = true
			return next()
		},
	)

	err := runChain(nil, chain, nil)

	assert.Equal(t, failure, err)
	assert.False(t, reached)
}

func TestRunChainTerminalErrorPropagates(t *testing.T) {
	failure := errors.New("connection handler failed")
	chain := chainOf(func(ctx *Context, next Next, args ...string) error {
		return next()
	})

	assert.Equal(t, failure, runChain(nil, chain, func() error { return failure }))
}

func TestRunChainStopsWhenCancelled(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx := &Context{ctx: parent, cancel: cancel}

	calls := []string{}
	chain := chainOf(
		func(ctx *Context, next Next, args ...string) error {
			calls = append(calls, "a")
			ctx.close()
			return next()
		},
		func(ctx *Context, next Next, args ...string) error {
			calls = append(calls, "b")
			return next()
		},
	)

	err := runChain(ctx, chain, func() error {
		calls = append(calls, "terminal")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, calls)
}

func TestRunChainHalted(t *testing.T) {
	terminalRan := false
	chain := chainOf(func(ctx *Context, next Next, args ...string) error {
		return nil
	})

	err := runChain(nil, chain, func() error {
		terminalRan = true
		return nil
	})

	assert.True(t, errors.Is(err, ErrMiddlewareHalted))
	assert.Equal(t, 403, StatusOf(err))
	assert.False(t, terminalRan)
}

func TestRunChainNextCalledTwice(t *testing.T) {
	terminalRuns := 0
	chain := chainOf(func(ctx *Context, next Next, args ...string) error {
		if err := next(); err != nil {
			return err
		}
		return next()
	})

	err := runChain(nil, chain, func() error {
		terminalRuns++
		return nil
	})

	assert.True(t, errors.Is(err, ErrNextCalledTwice))
	assert.Equal(t, 1, terminalRuns)
}

func TestRunChainRecoversPanics(t *testing.T) {
	chain := chainOf(func(ctx *Context, next Next, args ...string) error {
		panic("boom")
	})

	err := runChain(nil, chain, nil)

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "boom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, 500, StatusOf(err))
}

func TestCallHandler(t *testing.T) {
	handler := &ResolvedHandler{Call: func(ctx *Context, args ...any) (any, error) {
		return len(args), nil
	}}
	result, err := callHandler(handler, nil, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result)

	panicking := &ResolvedHandler{Call: func(ctx *Context, args ...any) (any, error) {
		panic(errors.New("handler exploded"))
	}}
	result, err = callHandler(panicking, nil)
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "handler exploded")
}
