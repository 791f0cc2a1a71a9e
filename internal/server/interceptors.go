package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// publicMethods answer without a bearer token.
var publicMethods = map[string]bool{
	"/grpc.health.v1.Health/Check":       true,
	"/" + ServiceName + "/GetPublicView": true,
}

var (
	errNoCredentials = errors.New("missing authorization header")
	errBadScheme     = errors.New("invalid authorization scheme")
	errBadToken      = errors.New("invalid token")
)

// checkBearer validates an Authorization value against the configured token.
func checkBearer(header, token string) error {
	if header == "" {
		return errNoCredentials
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errBadScheme
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return errBadToken
	}
	return nil
}

func firstMetadata(ctx context.Context, key string) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// AuthInterceptor rejects calls without a matching bearer token in the
// "authorization" metadata. An empty token disables the check.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token != "" && !publicMethods[info.FullMethod] {
			if err := checkBearer(firstMetadata(ctx, "authorization"), token); err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}
		return handler(ctx, req)
	}
}

// AuthMiddleware is the HTTP counterpart of AuthInterceptor.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isPublicRoute(r) {
			if err := checkBearer(r.Header.Get("Authorization"), token); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// LoggingInterceptor logs one line per unary call. Client mistakes log at
// warn and server faults at error.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
		if actor := firstMetadata(ctx, actorMetadataKey); actor != "" {
			attrs = append(attrs, "actor", actor)
		}
		if m, ok := req.(proto.Message); ok {
			attrs = append(attrs, "request_bytes", proto.Size(m))
		}

		level := slog.LevelInfo
		if err != nil {
			code := status.Code(err)
			attrs = append(attrs, "code", code, "error", err)
			level = slog.LevelWarn
			if serverFault(code) {
				level = slog.LevelError
			}
		}
		logger.Log(ctx, level, "rpc completed", attrs...)
		return resp, err
	}
}

func serverFault(c codes.Code) bool {
	switch c {
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return true
	}
	return false
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in gRPC handler",
					"method", info.FullMethod,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
