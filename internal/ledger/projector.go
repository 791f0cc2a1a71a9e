package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// Project builds the public provenance view of the microlot with the given
// code. Only the fields of model.PublicView leave the ledger: actor ids,
// internal metadata and inactive microlots are never exposed.
func (s *Service) Project(ctx context.Context, code string) (*model.PublicView, error) {
	m, err := s.GetMicrolotByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	lot, err := s.store.GetLot(ctx, m.LotRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("lot %s", m.LotRef)
		}
		return nil, fmt.Errorf("looking up lot: %w", err)
	}
	harvest, err := s.store.GetHarvest(ctx, m.HarvestRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("harvest %s", m.HarvestRef)
		}
		return nil, fmt.Errorf("looking up harvest: %w", err)
	}
	chain, err := s.store.ListEvents(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("loading chain: %w", err)
	}
	quality, err := s.store.ListQualityRecords(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("loading quality records: %w", err)
	}
	certs, err := s.store.ListCertifications(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("loading certifications: %w", err)
	}

	view := &model.PublicView{
		Code:            m.Code,
		QuantityKg:      m.QuantityKg,
		QualityGrade:    m.QualityGrade,
		Status:          m.Status,
		Harvest:         model.PublicHarvest{Date: harvest.HarvestDate, Variety: lot.Variety},
		ProcessingSteps: []model.PublicEvent{},
		Certifications:  []model.PublicCertification{},
		Timeline:        make([]model.PublicEvent, 0, len(chain)),
	}
	if f := lot.Farm; f != nil {
		view.Farm = model.PublicFarm{
			Name:      f.Name,
			OwnerName: f.OwnerName,
			Region:    f.Region,
			Country:   f.Country,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			AltitudeM: f.AltitudeM,
		}
	}

	for _, e := range chain {
		pe := publicEvent(e)
		view.Timeline = append(view.Timeline, pe)
		if isProcessingStep(e.EventType) {
			view.ProcessingSteps = append(view.ProcessingSteps, pe)
		}
	}

	if q := latestPassing(quality); q != nil {
		view.LatestQuality = &model.PublicQuality{
			TestType: q.TestType,
			TestDate: q.TestDate,
			SCAScore: q.Measurements.SCAScore,
			Passed:   q.Passed,
		}
	}

	now := s.clock()
	for _, c := range certs {
		if c.StatusAt(now) != model.CertificationActive {
			continue
		}
		view.Certifications = append(view.Certifications, model.PublicCertification{
			Type:              c.Type,
			IssuingBody:       c.IssuingBody,
			CertificateNumber: c.CertificateNumber,
			IssueDate:         c.IssueDate,
			ExpiryDate:        c.ExpiryDate,
		})
	}

	v := VerifyMicrolot(m, chain)
	view.Integrity = model.PublicIntegrity{Verified: v.Valid && m.IntegrityFlag == nil, Blocks: len(chain)}
	if view.Integrity.Verified {
		view.Integrity.HeadHash = v.HeadHash
	}
	return view, nil
}

// publicEvent keeps the type, date, description and location of an event.
func publicEvent(e *model.TraceabilityEvent) model.PublicEvent {
	pe := model.PublicEvent{
		EventType:   e.EventType,
		Date:        e.EventDate,
		Description: e.Description,
	}
	if loc := e.Metadata.Location; loc != nil {
		cp := *loc
		pe.Location = &cp
	}
	return pe
}

func isProcessingStep(t model.EventType) bool {
	_, ok := advances[t]
	return ok
}

func latestPassing(records []*model.QualityControlRecord) *model.QualityControlRecord {
	var best *model.QualityControlRecord
	for _, r := range records {
		if !r.Passed {
			continue
		}
		if best == nil || r.TestDate.After(best.TestDate) ||
			(r.TestDate.Equal(best.TestDate) && r.EventBlock > best.EventBlock) {
			best = r
		}
	}
	return best
}
