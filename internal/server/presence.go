package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/presence"
	"google.golang.org/grpc"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// trackActivity records successful writes made with an actor header.
func (s *LedgerServer) trackActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.presence == nil || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		actor := actorFromRequest(r, "")
		if actor == "" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= 400 {
			return
		}
		action := r.Pattern
		if action == "" {
			action = r.Method + " " + r.URL.Path
		}
		s.presence.Record(presence.Activity{Actor: actor, Action: action, Transport: "http"})
	})
}

// handleListActors handles GET /v1/actors. The optional stale query
// parameter is a duration such as "1h".
func (s *LedgerServer) handleListActors(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		writeError(w, http.StatusNotFound, "actor roster not enabled")
		return
	}
	var stale time.Duration
	if v := r.URL.Query().Get("stale"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid stale duration")
			return
		}
		stale = d
	}
	writeJSON(w, http.StatusOK, s.presence.Roster(stale))
}

// readOnlyMethod reports whether a gRPC method only reads.
func readOnlyMethod(fullMethod string) bool {
	name := fullMethod[strings.LastIndex(fullMethod, "/")+1:]
	for _, prefix := range []string{"Get", "List", "Verify", "Check"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ActivityInterceptor records successful gRPC writes in t, keyed by the
// x-actor-id metadata.
func ActivityInterceptor(t *presence.Tracker) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil || readOnlyMethod(info.FullMethod) {
			return resp, err
		}
		if actor := actorFromContext(ctx, ""); actor != "" {
			t.Record(presence.Activity{
				Actor:     actor,
				Action:    info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:],
				Transport: "grpc",
			})
		}
		return resp, nil
	}
}
