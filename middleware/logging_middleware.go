package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wdbg/packet"
)

// LoggingMiddleware records how long each request took and whether it
// failed, via the same structured *zap.SugaredLogger router and client
// already carry. A nil logger is replaced with a no-op one.
func LoggingMiddleware(logger *zap.SugaredLogger) Middleware {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *packet.Packet) (*packet.Packet, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)
			if err != nil {
				logger.Warnw("client: request failed", "duration", duration, "error", err)
			} else {
				logger.Debugw("client: request completed", "duration", duration)
			}
			return resp, err
		}
	}
}
