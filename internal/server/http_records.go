package server

import (
	"net/http"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// handleRecordQualityControl handles POST /v1/quality-control.
func (s *LedgerServer) handleRecordQualityControl(w http.ResponseWriter, r *http.Request) {
	var in ledger.QualityInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.TesterID = actorFromRequest(r, in.TesterID)

	rec, err := s.ledger.RecordQualityControl(r.Context(), in)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleListQualityRecords handles GET /v1/microlots/{id}/quality-control.
func (s *LedgerServer) handleListQualityRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.ListQualityRecords(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if records == nil {
		records = []*model.QualityControlRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

type appendEventRequest struct {
	MicrolotID  string               `json:"microlot_id"`
	EventType   model.EventType      `json:"event_type"`
	Description string               `json:"description"`
	EventDate   *time.Time           `json:"event_date,omitempty"`
	Location    *model.Location      `json:"location,omitempty"`
	Metadata    *model.EventMetadata `json:"metadata,omitempty"`
	ActorID     string               `json:"actor_id,omitempty"`
}

// handleAppendEvent handles POST /v1/events. Only manual annotations are
// accepted here; status changes go through PATCH /v1/microlots/{id}/status.
func (s *LedgerServer) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var req appendEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	meta := req.Metadata
	if req.Location != nil {
		if meta == nil {
			meta = &model.EventMetadata{}
		}
		meta.Location = req.Location
	}

	e, err := s.ledger.Annotate(r.Context(), ledger.AppendInput{
		MicrolotID:  req.MicrolotID,
		EventType:   req.EventType,
		Description: req.Description,
		EventDate:   req.EventDate,
		Metadata:    meta,
		ActorID:     actorFromRequest(r, req.ActorID),
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleAttachCertification handles POST /v1/certifications.
func (s *LedgerServer) handleAttachCertification(w http.ResponseWriter, r *http.Request) {
	var in ledger.CertificationInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.ActorID = actorFromRequest(r, in.ActorID)

	c, err := s.ledger.AttachCertification(r.Context(), in)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type revokeCertificationRequest struct {
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id,omitempty"`
}

// handleRevokeCertification handles POST /v1/certifications/{id}/revoke.
func (s *LedgerServer) handleRevokeCertification(w http.ResponseWriter, r *http.Request) {
	var req revokeCertificationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.ledger.RevokeCertification(r.Context(), r.PathValue("id"), actorFromRequest(r, req.ActorID), req.Reason)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleListCertifications handles GET /v1/microlots/{id}/certifications.
func (s *LedgerServer) handleListCertifications(w http.ResponseWriter, r *http.Request) {
	certs, err := s.ledger.ListCertifications(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if certs == nil {
		certs = []*model.CertificationRecord{}
	}
	writeJSON(w, http.StatusOK, certs)
}
