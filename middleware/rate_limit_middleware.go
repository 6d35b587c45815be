package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"wdbg/packet"
)

// RateLimitMiddleware caps how many requests per second this client will
// send, using a token-bucket limiter to throttle outbound requests.
//
// CRITICAL: the limiter is created in the OUTER closure (once per
// middleware creation), NOT in the inner handler function. If created
// per-request, every request would get a fresh full bucket, defeating the
// entire purpose of rate limiting.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *packet.Packet) (*packet.Packet, error) {
			if !limiter.Allow() {
				return nil, fmt.Errorf("middleware: request rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
