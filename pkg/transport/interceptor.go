package transport

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/metrics"
)

// LoggingMetricsInterceptor records a DispatchAttemptsTotal/DispatchLatency
// observation and a debug/warn log line for every unary RPC. It reuses
// the method-name extraction a read-only-socket guard would need to
// classify RPCs, repointed here at logging and metrics instead of
// access control.
func LoggingMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := methodName(info.FullMethod)

		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.DispatchAttemptsTotal.WithLabelValues(method, outcome).Inc()
		metrics.DispatchLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())

		logger := log.WithComponent("transport")
		if err != nil {
			logger.Warn().Str("method", method).Dur("latency", time.Since(start)).Err(err).Msg("rpc failed")
		} else {
			logger.Debug().Str("method", method).Dur("latency", time.Since(start)).Msg("rpc handled")
		}
		return resp, err
	}
}

// methodName extracts the bare method name from a full gRPC method
// path ("/flowgate.transport.EventService/PushEvents" -> "PushEvents").
func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}
