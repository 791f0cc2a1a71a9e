package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// handleCreateMicrolot handles POST /v1/microlots.
func (s *LedgerServer) handleCreateMicrolot(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateMicrolotInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.ActorID = actorFromRequest(r, in.ActorID)

	m, err := s.ledger.CreateMicrolot(r.Context(), in)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleListMicrolots handles GET /v1/microlots.
func (s *LedgerServer) handleListMicrolots(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMicrolotFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	microlots, total, err := s.ledger.ListMicrolots(r.Context(), filter)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	// Ensure microlots is never null in JSON output.
	if microlots == nil {
		microlots = []*model.Microlot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"microlots": microlots,
		"total":     total,
	})
}

func parseMicrolotFilter(r *http.Request) (model.MicrolotFilter, error) {
	q := r.URL.Query()
	filter := model.MicrolotFilter{
		LotRef:     q.Get("lot_ref"),
		HarvestRef: q.Get("harvest_ref"),
		Search:     q.Get("search"),
		Sort:       q.Get("sort"),
	}

	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			filter.Status = append(filter.Status, model.Status(strings.TrimSpace(st)))
		}
	}
	if v := q.Get("quality_grade"); v != "" {
		for _, g := range strings.Split(v, ",") {
			filter.QualityGrade = append(filter.QualityGrade, strings.TrimSpace(g))
		}
	}
	if v := q.Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, &paramError{"include_inactive", v}
		}
		filter.IncludeInactive = b
	}
	if v := q.Get("flagged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, &paramError{"flagged", v}
		}
		filter.Flagged = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, &paramError{"limit", v}
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, &paramError{"offset", v}
		}
		filter.Offset = n
	}
	return filter, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value)
}

// handleGetMicrolot handles GET /v1/microlots/{id}.
func (s *LedgerServer) handleGetMicrolot(w http.ResponseWriter, r *http.Request) {
	m, err := s.ledger.GetMicrolot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleDeactivateMicrolot handles DELETE /v1/microlots/{id}.
func (s *LedgerServer) handleDeactivateMicrolot(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r, r.URL.Query().Get("actor_id"))
	if err := s.ledger.DeactivateMicrolot(r.Context(), r.PathValue("id"), actor); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusUpdateRequest struct {
	EventType   model.EventType      `json:"event_type"`
	Description string               `json:"description"`
	EventDate   *time.Time           `json:"event_date,omitempty"`
	Metadata    *model.EventMetadata `json:"metadata,omitempty"`
	ActorID     string               `json:"actor_id,omitempty"`
}

// handleUpdateStatus handles PATCH /v1/microlots/{id}/status.
func (s *LedgerServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := s.ledger.AdvanceStatus(r.Context(), ledger.AppendInput{
		MicrolotID:  r.PathValue("id"),
		EventType:   req.EventType,
		Description: req.Description,
		EventDate:   req.EventDate,
		Metadata:    req.Metadata,
		ActorID:     actorFromRequest(r, req.ActorID),
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleListEvents handles GET /v1/microlots/{id}/events.
func (s *LedgerServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	chain, err := s.ledger.ListEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if chain == nil {
		chain = []*model.TraceabilityEvent{}
	}
	writeJSON(w, http.StatusOK, chain)
}

// handleVerifyChain handles GET /v1/microlots/{id}/verify. A broken chain is
// still a 200; the body says where it broke.
func (s *LedgerServer) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	v, err := s.ledger.VerifyChain(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type resolveIntegrityRequest struct {
	Note    string `json:"note,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

// handleResolveIntegrity handles POST /v1/microlots/{id}/integrity/resolve.
func (s *LedgerServer) handleResolveIntegrity(w http.ResponseWriter, r *http.Request) {
	var req resolveIntegrityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := s.ledger.ResolveIntegrity(r.Context(), r.PathValue("id"), actorFromRequest(r, req.ActorID), req.Note)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleGetStats handles GET /v1/stats.
func (s *LedgerServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePublicView handles GET /v1/public/{code}. Every failure is reported
// as not found so the route reveals nothing about inactive or broken lots.
func (s *LedgerServer) handlePublicView(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.Project(r.Context(), r.PathValue("code"))
	if err != nil {
		if httpStatus(err) == http.StatusInternalServerError {
			s.logger.Error("public view failed", "code", r.PathValue("code"), "error", err)
		}
		writeError(w, http.StatusNotFound, "microlot not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}
