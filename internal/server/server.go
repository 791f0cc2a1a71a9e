package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/presence"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ActorHeader carries the acting user's id on HTTP requests. The gRPC
// equivalent is the "x-actor-id" metadata key.
const ActorHeader = "X-Actor-ID"

const actorMetadataKey = "x-actor-id"

// LedgerServer exposes a ledger.Service over HTTP and gRPC.
type LedgerServer struct {
	ledger   *ledger.Service
	stream   *EventStream
	presence *presence.Tracker
	logger   *slog.Logger
}

// NewLedgerServer returns a LedgerServer backed by the given ledger.
func NewLedgerServer(l *ledger.Service, logger *slog.Logger) *LedgerServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerServer{ledger: l, logger: logger}
}

// WithEventStream enables GET /v1/events/stream, fed by es. es must also be
// the publisher the ledger was built with.
func (s *LedgerServer) WithEventStream(es *EventStream) *LedgerServer {
	s.stream = es
	return s
}

// WithPresence records every successful write in t and enables the actor
// roster routes.
func (s *LedgerServer) WithPresence(t *presence.Tracker) *LedgerServer {
	s.presence = t
	return s
}

// httpStatus maps a ledger error to an HTTP status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, ledger.ErrIntegrityViolation):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// grpcError converts a ledger error to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, ledger.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, ledger.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, ledger.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, ledger.ErrConflict):
		code = codes.Aborted
	case errors.Is(err, ledger.ErrIntegrityViolation):
		code = codes.DataLoss
	case errors.Is(err, ledger.ErrForbidden):
		code = codes.PermissionDenied
	}
	return status.Error(code, err.Error())
}

// actorFromRequest prefers the actor header over the id given in the body.
func actorFromRequest(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get(ActorHeader)); v != "" {
		return v
	}
	return fallback
}

// actorFromContext prefers the x-actor-id metadata over the id given in the
// request message.
func actorFromContext(ctx context.Context, fallback string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(actorMetadataKey); len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
			return strings.TrimSpace(vals[0])
		}
	}
	return fallback
}
