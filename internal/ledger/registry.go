package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/events"
	"github.com/alfredjeanlab/cafetrace/internal/idgen"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// maxCodeAttempts bounds code regeneration when a generated code is taken.
const maxCodeAttempts = 5

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// sortFields are the microlot fields a list may be ordered by.
var sortFields = map[string]bool{
	"created_at":    true,
	"updated_at":    true,
	"quantity_kg":   true,
	"code":          true,
	"status":        true,
	"quality_grade": true,
}

// CreateMicrolotInput holds the parameters for registering a microlot.
type CreateMicrolotInput struct {
	LotRef         string               `json:"lot_ref"`
	HarvestRef     string               `json:"harvest_ref"`
	QuantityKg     float64              `json:"quantity_kg"`
	QualityGrade   string               `json:"quality_grade"`
	Description    string               `json:"description,omitempty"`
	Location       *model.Location      `json:"location,omitempty"` // defaults to the farm
	Certifications []CertificationInput `json:"certifications,omitempty"`
	ActorID        string               `json:"actor_id"`
}

// CreateMicrolot registers a microlot and writes its genesis block, plus one
// CERTIFICATION block per supplied certification, in a single transaction.
func (s *Service) CreateMicrolot(ctx context.Context, in CreateMicrolotInput) (*model.Microlot, error) {
	var ve model.ValidationError
	if strings.TrimSpace(in.LotRef) == "" {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "lot_ref", Message: "is required"})
	}
	if strings.TrimSpace(in.HarvestRef) == "" {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "harvest_ref", Message: "is required"})
	}
	if !(in.QuantityKg > 0) {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "quantity_kg", Message: "must be greater than 0"})
	}
	if strings.TrimSpace(in.QualityGrade) == "" {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "quality_grade", Message: "is required"})
	}
	if strings.TrimSpace(in.ActorID) == "" {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "actor_id", Message: "is required"})
	}
	if ve.HasErrors() {
		return nil, validation(&ve)
	}
	if err := model.ValidateDescription(in.Description); err != nil {
		return nil, validation(err)
	}
	if in.Location != nil {
		if err := model.ValidateMetadata(&model.EventMetadata{Location: in.Location}); err != nil {
			return nil, validation(err)
		}
	}
	for i := range in.Certifications {
		if err := model.ValidateCertification(in.Certifications[i].record()); err != nil {
			return nil, &Error{Kind: ErrValidation, Msg: fmt.Sprintf("certifications[%d]: %v", i, err), Err: err}
		}
	}

	lot, err := s.store.GetLot(ctx, in.LotRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("lot %s", in.LotRef)
		}
		return nil, fmt.Errorf("looking up lot: %w", err)
	}
	harvest, err := s.store.GetHarvest(ctx, in.HarvestRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("harvest %s", in.HarvestRef)
		}
		return nil, fmt.Errorf("looking up harvest: %w", err)
	}
	if harvest.LotID != lot.ID {
		return nil, invalidf("harvest %s belongs to lot %s, not %s", harvest.ID, harvest.LotID, lot.ID)
	}

	location := in.Location
	if location == nil && lot.Farm != nil {
		location = farmLocation(lot.Farm)
	}
	genesisDate := harvest.HarvestDate
	if genesisDate.IsZero() {
		genesisDate = s.clock()
	}
	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Harvested %g kg from lot %s", in.QuantityKg, lot.Name)
	}

	var (
		created *model.Microlot
		chain   []*model.TraceabilityEvent
		certs   []*model.CertificationRecord
	)
	err = s.withRetry(ctx, "create microlot", func(tx store.Store) error {
		chain, certs = nil, nil
		now := s.clock()
		id, err := idgen.GenerateWithPrefix(idgen.PrefixMicrolot)
		if err != nil {
			return fmt.Errorf("generating microlot id: %w", err)
		}
		code, err := s.freeCode(ctx, tx, now)
		if err != nil {
			return err
		}

		m := &model.Microlot{
			ID:           id,
			Code:         code,
			LotRef:       lot.ID,
			HarvestRef:   harvest.ID,
			QuantityKg:   in.QuantityKg,
			QualityGrade: in.QualityGrade,
			Status:       model.StatusHarvested,
			IsActive:     true,
			CreatedAt:    now,
			CreatedBy:    in.ActorID,
			UpdatedAt:    now,
		}
		if err := tx.CreateMicrolot(ctx, m); err != nil {
			return err
		}

		genesis, err := s.link(m.ID, nil, model.EventHarvest, genesisDate, description,
			model.EventMetadata{Location: location}, in.ActorID)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, genesis); err != nil {
			return err
		}
		if err := tx.UpdateMicrolotStatus(ctx, m.ID, model.StatusHarvested, genesis.BlockNumber); err != nil {
			return err
		}
		chain = append(chain, genesis)

		for _, ci := range in.Certifications {
			ci.MicrolotID = m.ID
			ci.ActorID = in.ActorID
			rec, res, err := s.attachInTx(ctx, tx, ci)
			if err != nil {
				return err
			}
			certs = append(certs, rec)
			chain = append(chain, res.event)
		}

		created, err = tx.GetMicrolot(ctx, m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicMicrolotCreated, created.ID, events.MicrolotCreated{Microlot: created, Genesis: chain[0]})
	for i, c := range certs {
		s.publish(ctx, events.TopicCertificationAttached, created.ID, events.CertificationAttached{Certification: c})
		s.publish(ctx, events.TopicEventAppended, created.ID, events.EventAppended{Event: chain[i+1], Status: created.Status})
	}
	return created, nil
}

// freeCode generates a microlot code that is not yet in use.
func (s *Service) freeCode(ctx context.Context, tx store.Store, now time.Time) (string, error) {
	for range maxCodeAttempts {
		code, err := idgen.MicrolotCode(now)
		if err != nil {
			return "", err
		}
		_, err = tx.GetMicrolotByCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		s.logger.Debug("microlot code collision", "code", code)
	}
	return "", &Error{Kind: ErrConflict, Msg: fmt.Sprintf("no free microlot code after %d attempts", maxCodeAttempts)}
}

func farmLocation(f *model.Farm) *model.Location {
	return &model.Location{
		Name:      f.Name,
		Region:    f.Region,
		Country:   f.Country,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		AltitudeM: f.AltitudeM,
	}
}

// GetMicrolot returns an active microlot by id.
func (s *Service) GetMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	m, err := s.store.GetMicrolot(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("microlot %s", id)
		}
		return nil, err
	}
	if !m.IsActive {
		return nil, notFoundf("microlot %s", id)
	}
	return m, nil
}

// GetMicrolotByCode returns an active microlot by its public code.
func (s *Service) GetMicrolotByCode(ctx context.Context, code string) (*model.Microlot, error) {
	m, err := s.store.GetMicrolotByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("microlot code %s", code)
		}
		return nil, err
	}
	if !m.IsActive {
		return nil, notFoundf("microlot code %s", code)
	}
	return m, nil
}

// ListMicrolots returns one page of microlots matching the filter and the
// total number of matches.
func (s *Service) ListMicrolots(ctx context.Context, filter model.MicrolotFilter) ([]*model.Microlot, int, error) {
	var ve model.ValidationError
	for _, st := range filter.Status {
		if !st.IsValid() {
			ve.Errors = append(ve.Errors, model.FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", st)})
		}
	}
	if filter.Sort != "" && !sortFields[strings.TrimPrefix(filter.Sort, "-")] {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "sort", Message: fmt.Sprintf("cannot sort by %q", filter.Sort)})
	}
	if filter.Limit < 0 {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "limit", Message: "must not be negative"})
	}
	if filter.Offset < 0 {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "offset", Message: "must not be negative"})
	}
	if ve.HasErrors() {
		return nil, 0, validation(&ve)
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	filter.Limit = min(filter.Limit, MaxListLimit)

	return s.store.ListMicrolots(ctx, filter)
}

// DeactivateMicrolot hides a microlot from lookups and rejects further
// appends. The chain is kept.
func (s *Service) DeactivateMicrolot(ctx context.Context, id, actorID string) error {
	if err := s.requirePrivilege(ctx, actorID, "deactivate microlots"); err != nil {
		return err
	}
	m, err := s.GetMicrolot(ctx, id)
	if err != nil {
		return err
	}
	err = s.withRetry(ctx, "deactivate", func(tx store.Store) error {
		if _, err := tx.LockMicrolot(ctx, m.ID); err != nil {
			return err
		}
		return tx.SetMicrolotActive(ctx, m.ID, false)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundf("microlot %s", id)
		}
		return err
	}
	s.logger.Info("microlot deactivated", "microlot_id", m.ID, "actor", actorID)
	s.publish(ctx, events.TopicMicrolotDeactivated, m.ID, events.MicrolotDeactivated{MicrolotID: m.ID, DeactivatedBy: actorID})
	return nil
}

// ListEvents returns a microlot's chain in block order.
func (s *Service) ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error) {
	m, err := s.GetMicrolot(ctx, microlotID)
	if err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, m.ID)
}

// Stats summarises the ledger.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	return s.store.GetStats(ctx)
}
