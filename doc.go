// Package wsns routes realtime socket connections to namespaces declared by
// pattern, runs connection middleware, and dispatches client events to
// handlers with acknowledgements.
//
// # Key Features
//
//   - Namespace patterns with parameters, optional parameters and wildcards
//   - Static namespaces matched before dynamic ones
//   - Param matchers, by regular expression or predicate
//   - Global and named middleware, with arguments (auth:admin, throttle:10,60)
//   - Handlers given as functions or as controller references
//   - Exceptions answered to the client and reported out of band
//
// # Quick Start
//
// Declare namespaces, commit them and attach the server to a transport:
//
//	server := wsns.NewServer(wsns.DefaultConfig())
//
//	server.Namespace("/chat/:room").
//	    On("message", func(ctx *wsns.Context, args ...any) (any, error) {
//	        return "received", nil
//	    })
//
//	transport := engine.NewServer(server.Config())
//	if err := server.Attach(transport); err != nil {
//	    panic(err)
//	}
//
//	http.ListenAndServe(":8080", transport)
//
// # Patterns
//
// Patterns are normalized before use, so "chat/" and "/chat" are the same
// namespace:
//
//	server.Namespace("/admin")            // Static
//	server.Namespace("/chat/:room")       // Named parameter
//	server.Namespace("/users/:id?")       // Optional trailing parameter
//	server.Namespace("/files/*")          // Wildcard
//
// # Middleware
//
// Middleware runs once per connection, before the connection is accepted.
// Returning an error declines the connection. Returning nil without calling
// next halts the chain, which also declines it:
//
//	server.Middleware().Register(func(ctx *wsns.Context, next wsns.Next) error {
//	    ctx.Logger().Info("connecting")
//	    return next()
//	})
//
// # Errors
//
// A handler error is turned into an error response by the exception
// handler and sent as the acknowledgement of the event. The connection
// stays open. Errors with a status of 500 or more are also handed to the
// reporters registered with Server.AddReporter.
package wsns
