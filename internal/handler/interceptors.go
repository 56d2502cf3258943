package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/common/middleware"
)

// requestIDKey is the metadata key carrying the caller's request id
const requestIDKey = "x-request-id"

// UnaryLogging is a gRPC unary server interceptor that logs every call with
// its status code, duration and the request id propagated in metadata.
func UnaryLogging(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		event := log.Debug()
		if err != nil {
			event = log.Warn().Err(err)
		}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDKey); len(ids) > 0 {
				event = event.Str("request_id", ids[0])
			}
		} else if id := middleware.GetRequestID(ctx); id != "" {
			event = event.Str("request_id", id)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}
