package set

import "github.com/RobertWHurst/wsns"

// Middleware creates middleware that sets a value on the connection context.
// The value is set once when the middleware is created and shared by every
// connection of the namespaces it is applied to.
//
// Example:
//
//	server.Middleware().Register(set.Middleware("apiVersion", "v1"))
//
//	server.Namespace("/info").On("version", func(ctx *wsns.Context, _ ...any) (any, error) {
//	    return ctx.MustGet("apiVersion").(string), nil // "v1"
//	})
//
// See also: Func for values computed per connection.
func Middleware[V any](key string, value V) wsns.MiddlewareFunc {
	return func(ctx *wsns.Context, next wsns.Next, _ ...string) error {
		ctx.Set(key, value)
		return next()
	}
}

// Func creates middleware that sets a value computed for each connection.
// An error returned by valueFn declines the connection.
//
// Example:
//
//	server.Middleware().Register(set.Func("connectionID", func(*wsns.Context) (string, error) {
//	    return uuid.NewString(), nil
//	}))
func Func[V any](key string, valueFn func(ctx *wsns.Context) (V, error)) wsns.MiddlewareFunc {
	return func(ctx *wsns.Context, next wsns.Next, _ ...string) error {
		value, err := valueFn(ctx)
		if err != nil {
			return err
		}
		ctx.Set(key, value)
		return next()
	}
}

// Param creates middleware copying a namespace param to the connection
// context under key.
func Param(key string, param string) wsns.MiddlewareFunc {
	return func(ctx *wsns.Context, next wsns.Next, _ ...string) error {
		ctx.Set(key, ctx.Param(param))
		return next()
	}
}
