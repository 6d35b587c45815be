package middleware

import (
	"context"
	"fmt"
	"time"

	"wdbg/packet"
	"wdbg/wdbgerr"
)

type result struct {
	resp *packet.Packet
	err  error
}

// TimeoutMiddleware enforces a maximum duration for one request. If next
// doesn't complete within timeout, it returns a KindTimeout error
// immediately; the underlying call keeps running in the background, since
// there is no way to abort a response that's already in flight on the
// router's read loop.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *packet.Packet) (*packet.Packet, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, wdbgerr.Wrap(wdbgerr.KindTimeout, fmt.Errorf("middleware: request timed out after %s", timeout))
			}
		}
	}
}
