package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wdbg/packet"
	"wdbg/wdbgerr"
)

// RetryMiddleware retries a request with exponential backoff when it fails
// with a Timeout or Transport error — the two kinds wdbgerr assigns to a
// condition that might clear up on its own — and gives up immediately on
// anything else (framing/decode/routing errors mean the response that did
// arrive doesn't match what was asked for; retrying won't fix that).
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.SugaredLogger) Middleware {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *packet.Packet) (*packet.Packet, error) {
			resp, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil {
					return resp, nil
				}
				kind := wdbgerr.KindOf(err)
				if kind != wdbgerr.KindTimeout && kind != wdbgerr.KindTransport {
					return resp, err
				}
				logger.Warnw("client: retrying request", "attempt", i+1, "error", err)
				time.Sleep(baseDelay * time.Duration(uint(1)<<uint(i)))
				resp, err = next(ctx, req)
			}
			return resp, err
		}
	}
}
