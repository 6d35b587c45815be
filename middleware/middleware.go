// Package middleware implements the onion-model interceptor chain around a
// client request, generalized from wrapping a business handler's
// (*message.RPCMessage) pair to wrapping a client request's
// (*packet.Packet) round trip.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next(ctx, req) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next (e.g., rate limiting)
package middleware

import (
	"context"

	"wdbg/packet"
)

// HandlerFunc sends req and returns whatever correlated response arrives,
// or an error. The innermost HandlerFunc in a chain is always a client's
// actual send-then-wait-for-response call.
type HandlerFunc func(ctx context.Context, req *packet.Packet) (*packet.Packet, error)

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middlewares into a single middleware, built from
// right to left so the first middleware in the list is the outermost layer
// (executed first on request, last on response).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
