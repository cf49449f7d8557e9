package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
)

// NewLoggingInterceptor creates an interceptor that logs every unary call with its outcome.
func NewLoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			elapsed := time.Since(start)

			procedure := req.Spec().Procedure
			if err != nil {
				code := connect.CodeOf(err)
				if code == connect.CodeInternal || code == connect.CodeUnavailable {
					zlog.Error().Err(err).Msgf("rpc: %s failed code=%s elapsed=%s", procedure, code, elapsed)
				} else {
					zlog.Info().Msgf("rpc: %s rejected code=%s error=%v", procedure, code, err)
				}
				return resp, err
			}
			zlog.Debug().Msgf("rpc: %s ok elapsed=%s", procedure, elapsed)
			return resp, nil
		}
	}
}
