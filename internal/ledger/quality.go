package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/events"
	"github.com/alfredjeanlab/cafetrace/internal/idgen"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// Quality thresholds.
const (
	MaxMoisturePct = 12.0
	MaxDefects     = 5
	MinSCAScore    = 80.0
)

// Evaluate applies the quality gate. A missing measurement fails the check
// it belongs to. Unknown test types never pass.
func Evaluate(testType model.TestType, m model.Measurements) bool {
	switch testType {
	case model.TestPhysical:
		return physicalPass(m)
	case model.TestSensory:
		return sensoryPass(m)
	case model.TestFull:
		return physicalPass(m) && sensoryPass(m)
	}
	return false
}

func physicalPass(m model.Measurements) bool {
	if m.MoisturePct == nil || m.Defects == nil {
		return false
	}
	return *m.MoisturePct <= MaxMoisturePct && *m.Defects <= MaxDefects
}

func sensoryPass(m model.Measurements) bool {
	if m.SCAScore == nil {
		return false
	}
	return *m.SCAScore >= MinSCAScore
}

// QualityInput holds the parameters of a lab result.
type QualityInput struct {
	MicrolotID   string             `json:"microlot_id"`
	TestType     model.TestType     `json:"test_type"`
	Measurements model.Measurements `json:"measurements"`
	TesterID     string             `json:"tester_id"`
	TestDate     *time.Time         `json:"test_date,omitempty"` // defaults to now
	Notes        string             `json:"notes,omitempty"`
}

// RecordQualityControl evaluates a lab result, stores the record and
// appends the QUALITY_CONTROL block carrying its outcome.
func (s *Service) RecordQualityControl(ctx context.Context, in QualityInput) (*model.QualityControlRecord, error) {
	if strings.TrimSpace(in.MicrolotID) == "" {
		return nil, invalidf("microlot_id is required")
	}
	if strings.TrimSpace(in.TesterID) == "" {
		return nil, invalidf("tester_id is required")
	}
	if !in.TestType.IsValid() {
		return nil, invalidf("unknown test type %q", in.TestType)
	}
	if err := model.ValidateMeasurements(in.Measurements); err != nil {
		return nil, validation(err)
	}
	if err := model.ValidateDescription(in.Notes); err != nil {
		return nil, validation(err)
	}

	testDate := s.clock()
	if in.TestDate != nil {
		testDate = CanonicalDate(*in.TestDate)
	}
	passed := Evaluate(in.TestType, in.Measurements)
	outcome := "failed"
	if passed {
		outcome = "passed"
	}

	var (
		rec *model.QualityControlRecord
		res appendResult
	)
	err := s.withRetry(ctx, "record quality control", func(tx store.Store) error {
		id, err := idgen.GenerateWithPrefix(idgen.PrefixQuality)
		if err != nil {
			return fmt.Errorf("generating quality record id: %w", err)
		}
		r := &model.QualityControlRecord{
			ID:           id,
			MicrolotID:   in.MicrolotID,
			TestType:     in.TestType,
			Measurements: in.Measurements,
			Passed:       passed,
			TesterID:     in.TesterID,
			TestDate:     testDate,
			Notes:        in.Notes,
			CreatedAt:    s.clock(),
		}
		res, err = s.appendInTx(ctx, tx, AppendInput{
			MicrolotID:  in.MicrolotID,
			EventType:   model.EventQualityControl,
			Description: fmt.Sprintf("%s quality test %s", in.TestType, outcome),
			EventDate:   &testDate,
			Metadata: &model.EventMetadata{Quality: &model.QualitySummary{
				RecordID:     r.ID,
				TestType:     r.TestType,
				Passed:       r.Passed,
				Measurements: r.Measurements,
			}},
			ActorID: in.TesterID,
		})
		if err != nil {
			return err
		}
		r.EventBlock = res.event.BlockNumber
		if err := tx.CreateQualityRecord(ctx, r); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		s.handleBrokenChain(ctx, err)
		return nil, err
	}

	s.publish(ctx, events.TopicQualityRecorded, rec.MicrolotID, events.QualityRecorded{Record: rec})
	s.publish(ctx, events.TopicEventAppended, rec.MicrolotID, events.EventAppended{Event: res.event, Status: res.status})
	return rec, nil
}

// ListQualityRecords returns a microlot's lab results.
func (s *Service) ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error) {
	m, err := s.GetMicrolot(ctx, microlotID)
	if err != nil {
		return nil, err
	}
	return s.store.ListQualityRecords(ctx, m.ID)
}
