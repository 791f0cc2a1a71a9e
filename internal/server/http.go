package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and the public
// provenance route) must include a valid Authorization: Bearer <token> header.
func (s *LedgerServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/microlots", s.handleCreateMicrolot)
	mux.HandleFunc("GET /v1/microlots", s.handleListMicrolots)
	mux.HandleFunc("GET /v1/microlots/{id}", s.handleGetMicrolot)
	mux.HandleFunc("DELETE /v1/microlots/{id}", s.handleDeactivateMicrolot)
	mux.HandleFunc("PATCH /v1/microlots/{id}/status", s.handleUpdateStatus)
	mux.HandleFunc("GET /v1/microlots/{id}/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/microlots/{id}/verify", s.handleVerifyChain)
	mux.HandleFunc("POST /v1/microlots/{id}/integrity/resolve", s.handleResolveIntegrity)
	mux.HandleFunc("GET /v1/microlots/{id}/quality-control", s.handleListQualityRecords)
	mux.HandleFunc("GET /v1/microlots/{id}/certifications", s.handleListCertifications)
	mux.HandleFunc("POST /v1/quality-control", s.handleRecordQualityControl)
	mux.HandleFunc("POST /v1/events", s.handleAppendEvent)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("POST /v1/certifications", s.handleAttachCertification)
	mux.HandleFunc("POST /v1/certifications/{id}/revoke", s.handleRevokeCertification)
	mux.HandleFunc("GET /v1/stats", s.handleGetStats)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/public/{code}", s.handlePublicView)
	mux.HandleFunc("GET /v1/actors", s.handleListActors)
	return AuthMiddleware(authToken, s.trackActivity(mux))
}

// handleHealth handles GET /v1/health.
func (s *LedgerServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// isPublicRoute reports whether the request needs no credentials.
func isPublicRoute(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return r.URL.Path == "/v1/health" || strings.HasPrefix(r.URL.Path, "/v1/public/")
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, Kind: kindForStatus(status)})
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeLedgerError writes err with the status and kind its classification
// maps to. Unclassified errors are logged and reported without detail.
func (s *LedgerServer) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, code, errorBody{Error: "internal error", Kind: "internal"})
		return
	}
	msg := err.Error()
	var le *ledger.Error
	if errors.As(err, &le) && le.Msg != "" {
		msg = le.Msg
	}
	writeJSON(w, code, errorBody{Error: msg, Kind: ledger.KindName(err)})
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	}
	return "internal"
}
