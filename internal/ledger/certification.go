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

// CertificationInput holds the parameters for attaching a certification.
type CertificationInput struct {
	MicrolotID        string    `json:"microlot_id"`
	Type              string    `json:"type"`
	IssuingBody       string    `json:"issuing_body"`
	CertificateNumber string    `json:"certificate_number"`
	IssueDate         time.Time `json:"issue_date"`
	ExpiryDate        time.Time `json:"expiry_date"`
	ActorID           string    `json:"actor_id,omitempty"`
}

func (in CertificationInput) record() *model.CertificationRecord {
	return &model.CertificationRecord{
		MicrolotID:        in.MicrolotID,
		Type:              strings.TrimSpace(in.Type),
		IssuingBody:       strings.TrimSpace(in.IssuingBody),
		CertificateNumber: strings.TrimSpace(in.CertificateNumber),
		IssueDate:         in.IssueDate.UTC(),
		ExpiryDate:        in.ExpiryDate.UTC(),
		CreatedBy:         in.ActorID,
	}
}

// AttachCertification records a certification and appends a CERTIFICATION
// block that references it.
func (s *Service) AttachCertification(ctx context.Context, in CertificationInput) (*model.CertificationRecord, error) {
	if strings.TrimSpace(in.MicrolotID) == "" {
		return nil, invalidf("microlot_id is required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return nil, invalidf("actor_id is required")
	}
	if err := model.ValidateCertification(in.record()); err != nil {
		return nil, validation(err)
	}

	var (
		rec *model.CertificationRecord
		res appendResult
	)
	err := s.withRetry(ctx, "attach certification", func(tx store.Store) error {
		var err error
		rec, res, err = s.attachInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		s.handleBrokenChain(ctx, err)
		return nil, err
	}

	s.publish(ctx, events.TopicCertificationAttached, rec.MicrolotID, events.CertificationAttached{Certification: rec})
	s.publish(ctx, events.TopicEventAppended, rec.MicrolotID, events.EventAppended{Event: res.event, Status: res.status})
	return rec, nil
}

func (s *Service) attachInTx(ctx context.Context, tx store.Store, in CertificationInput) (*model.CertificationRecord, appendResult, error) {
	id, err := idgen.GenerateWithPrefix(idgen.PrefixCertification)
	if err != nil {
		return nil, appendResult{}, fmt.Errorf("generating certification id: %w", err)
	}
	now := s.clock()
	rec := in.record()
	rec.ID = id
	rec.CreatedAt = now

	res, err := s.appendInTx(ctx, tx, AppendInput{
		MicrolotID: rec.MicrolotID,
		EventType:  model.EventCertification,
		Description: fmt.Sprintf("%s certification %s issued by %s, valid %s to %s",
			rec.Type, rec.CertificateNumber, rec.IssuingBody,
			rec.IssueDate.Format(time.DateOnly), rec.ExpiryDate.Format(time.DateOnly)),
		EventDate: &now,
		Metadata: &model.EventMetadata{Certification: &model.CertificationRef{
			RecordID:          rec.ID,
			Type:              rec.Type,
			IssuingBody:       rec.IssuingBody,
			CertificateNumber: rec.CertificateNumber,
		}},
		ActorID: in.ActorID,
	})
	if err != nil {
		return nil, appendResult{}, err
	}
	if err := tx.CreateCertification(ctx, rec); err != nil {
		return nil, appendResult{}, err
	}
	rec.Status = rec.StatusAt(now)
	return rec, res, nil
}

// RevokeCertification stamps a certification as revoked and appends a
// CERTIFICATION_REVOKED block. Revocation is permanent.
func (s *Service) RevokeCertification(ctx context.Context, certID, actorID, reason string) (*model.CertificationRecord, error) {
	if strings.TrimSpace(certID) == "" {
		return nil, invalidf("certification id is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, invalidf("reason is required")
	}
	if err := s.requirePrivilege(ctx, actorID, "revoke certifications"); err != nil {
		return nil, err
	}

	var (
		rec *model.CertificationRecord
		res appendResult
	)
	err := s.withRetry(ctx, "revoke certification", func(tx store.Store) error {
		c, err := tx.GetCertification(ctx, certID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundf("certification %s", certID)
			}
			return err
		}
		// Serialises revocations of the same certification.
		if _, err := tx.LockMicrolot(ctx, c.MicrolotID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundf("microlot %s", c.MicrolotID)
			}
			return err
		}
		c, err = tx.GetCertification(ctx, certID)
		if err != nil {
			return err
		}
		if c.RevokedAt != nil {
			return transitionf("certification %s was already revoked", certID)
		}

		now := s.clock()
		res, err = s.appendInTx(ctx, tx, AppendInput{
			MicrolotID:  c.MicrolotID,
			EventType:   model.EventCertificationRevoked,
			Description: fmt.Sprintf("%s certification %s revoked", c.Type, c.CertificateNumber),
			EventDate:   &now,
			Metadata: &model.EventMetadata{Certification: &model.CertificationRef{
				RecordID:          c.ID,
				Type:              c.Type,
				IssuingBody:       c.IssuingBody,
				CertificateNumber: c.CertificateNumber,
				Reason:            reason,
			}},
			ActorID: actorID,
		})
		if err != nil {
			return err
		}
		if err := tx.RevokeCertification(ctx, c.ID, now, actorID, reason); err != nil {
			return err
		}
		c.RevokedAt = &now
		c.RevokedBy = actorID
		c.RevocationReason = reason
		c.Status = c.StatusAt(now)
		rec = c
		return nil
	})
	if err != nil {
		s.handleBrokenChain(ctx, err)
		return nil, err
	}

	s.publish(ctx, events.TopicCertificationRevoked, rec.MicrolotID, events.CertificationRevoked{Certification: rec})
	s.publish(ctx, events.TopicEventAppended, rec.MicrolotID, events.EventAppended{Event: res.event, Status: res.status})
	return rec, nil
}

// ListCertifications returns a microlot's certifications with their status
// derived at the current time.
func (s *Service) ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error) {
	m, err := s.GetMicrolot(ctx, microlotID)
	if err != nil {
		return nil, err
	}
	certs, err := s.store.ListCertifications(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	for _, c := range certs {
		c.Status = c.StatusAt(now)
	}
	return certs, nil
}
