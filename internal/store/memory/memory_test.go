package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

func seedMicrolot(t *testing.T, s *Store, id, code string) {
	t.Helper()
	now := time.Now().UTC()
	m := &model.Microlot{
		ID: id, Code: code, LotRef: "L1", HarvestRef: "H1", QuantityKg: 100,
		QualityGrade: "AA", Status: model.StatusHarvested, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateMicrolot(context.Background(), m); err != nil {
		t.Fatalf("CreateMicrolot: %v", err)
	}
}

func event(microlotID string, block int64) *model.TraceabilityEvent {
	return &model.TraceabilityEvent{
		ID: microlotID + "-ev", MicrolotID: microlotID, BlockNumber: block,
		EventType: model.EventNote, EventDate: time.Now().UTC(), CurrentHash: "h",
	}
}

// appendInTx runs the append protocol the ledger uses: read tail, insert the
// next block, move the tail pointer.
func appendInTx(ctx context.Context, tx store.Store, microlotID string) error {
	if _, err := tx.LockMicrolot(ctx, microlotID); err != nil {
		return err
	}
	tail, err := tx.GetChainTail(ctx, microlotID)
	if err != nil {
		return err
	}
	var next int64 = 1
	if tail != nil {
		next = tail.BlockNumber + 1
	}
	if err := tx.AppendEvent(ctx, event(microlotID, next)); err != nil {
		return err
	}
	return tx.UpdateMicrolotStatus(ctx, microlotID, model.StatusHarvested, next)
}

func TestCreateMicrolot_DuplicateCode(t *testing.T) {
	s := New()
	seedMicrolot(t, s, "ml-1", "ML-A")

	err := s.CreateMicrolot(context.Background(), &model.Microlot{ID: "ml-2", Code: "ML-A"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetMicrolot_NotFound(t *testing.T) {
	s := New()
	if _, err := s.GetMicrolot(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetMicrolotByCode(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")

	m, _ := s.GetMicrolot(ctx, "ml-1")
	m.Status = model.StatusExported

	again, _ := s.GetMicrolot(ctx, "ml-1")
	if again.Status != model.StatusHarvested {
		t.Fatalf("stored microlot was mutated through a returned pointer")
	}

	e := event("ml-1", 1)
	e.Metadata.Tags = []string{"a"}
	if err := s.AppendEvent(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Metadata.Tags[0] = "mutated"
	events, _ := s.ListEvents(ctx, "ml-1")
	if events[0].Metadata.Tags[0] != "a" {
		t.Fatalf("stored event shares memory with caller")
	}
}

func TestRunInTransaction_CommitAndRollback(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")

	if err := s.RunInTransaction(ctx, func(tx store.Store) error {
		return appendInTx(ctx, tx, "ml-1")
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := appendInTx(ctx, tx, "ml-1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	events, _ := s.ListEvents(ctx, "ml-1")
	if len(events) != 1 {
		t.Fatalf("expected rollback to leave 1 event, got %d", len(events))
	}
	m, _ := s.GetMicrolot(ctx, "ml-1")
	if m.TailBlock != 1 {
		t.Fatalf("expected tail 1, got %d", m.TailBlock)
	}
}

func TestRunInTransaction_ConflictOnMovedTail(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := appendInTx(ctx, tx, "ml-1"); err != nil {
			return err
		}
		// A concurrent writer commits first.
		return s.RunInTransaction(ctx, func(other store.Store) error {
			return appendInTx(ctx, other, "ml-1")
		})
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	events, _ := s.ListEvents(ctx, "ml-1")
	if len(events) != 1 || events[0].BlockNumber != 1 {
		t.Fatalf("expected exactly block 1 to survive, got %d events", len(events))
	}
}

func TestRunInTransaction_ConflictOnMicrolotWrite(t *testing.T) {
	for _, tc := range []struct {
		name  string
		write func(ctx context.Context, tx store.Store) error
	}{
		{"deactivate", func(ctx context.Context, tx store.Store) error {
			return tx.SetMicrolotActive(ctx, "ml-1", false)
		}},
		{"flag", func(ctx context.Context, tx store.Store) error {
			return tx.SetIntegrityFlag(ctx, "ml-1", &model.IntegrityFlag{BrokenAtBlock: 1, Reason: "hash mismatch", FlaggedAt: time.Now().UTC()})
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			ctx := context.Background()
			seedMicrolot(t, s, "ml-1", "ML-A")

			err := s.RunInTransaction(ctx, func(tx store.Store) error {
				m, err := tx.LockMicrolot(ctx, "ml-1")
				if err != nil {
					return err
				}
				if !m.IsActive || m.IntegrityFlag != nil {
					t.Fatalf("snapshot should see an active, unflagged microlot")
				}
				if err := s.RunInTransaction(ctx, func(other store.Store) error {
					return tc.write(ctx, other)
				}); err != nil {
					t.Fatalf("concurrent write: %v", err)
				}
				return appendInTx(ctx, tx, "ml-1")
			})
			if !errors.Is(err, store.ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
			events, _ := s.ListEvents(ctx, "ml-1")
			if len(events) != 0 {
				t.Fatalf("stale append committed %d events", len(events))
			}
		})
	}
}

func TestRunInTransaction_CreateThenAppend(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		m := &model.Microlot{
			ID: "ml-1", Code: "ML-A", LotRef: "L1", HarvestRef: "H1", QuantityKg: 10,
			QualityGrade: "A", Status: model.StatusHarvested, IsActive: true, CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.CreateMicrolot(ctx, m); err != nil {
			return err
		}
		return appendInTx(ctx, tx, "ml-1")
	})
	if err != nil {
		t.Fatalf("create and append in one transaction: %v", err)
	}
	events, _ := s.ListEvents(ctx, "ml-1")
	if len(events) != 1 {
		t.Fatalf("expected genesis block, got %d events", len(events))
	}
}

func TestRunInTransaction_IndependentMicrolotsDoNotConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")
	seedMicrolot(t, s, "ml-2", "ML-B")

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := appendInTx(ctx, tx, "ml-1"); err != nil {
			return err
		}
		return s.RunInTransaction(ctx, func(other store.Store) error {
			return appendInTx(ctx, other, "ml-2")
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []string{"ml-1", "ml-2"} {
		events, _ := s.ListEvents(ctx, id)
		if len(events) != 1 {
			t.Fatalf("%s: expected 1 event, got %d", id, len(events))
		}
	}
}

func TestRunInTransaction_CanceledContext(t *testing.T) {
	s := New()
	seedMicrolot(t, s, "ml-1", "ML-A")
	ctx, cancel := context.WithCancel(context.Background())

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := appendInTx(ctx, tx, "ml-1"); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	events, _ := s.ListEvents(context.Background(), "ml-1")
	if len(events) != 0 {
		t.Fatalf("canceled transaction left %d events", len(events))
	}
}

func TestUpdateMicrolotStatus_TailCheck(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")

	if err := s.UpdateMicrolotStatus(ctx, "ml-1", model.StatusDrying, 2); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for skipped tail, got %v", err)
	}
	if err := s.UpdateMicrolotStatus(ctx, "ml-1", model.StatusHarvested, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppendEvent_DuplicateBlock(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")

	if err := s.AppendEvent(ctx, event("ml-1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendEvent(ctx, event("ml-1", 1)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListMicrolots_Filter(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-AAA")
	seedMicrolot(t, s, "ml-2", "ML-BBB")
	seedMicrolot(t, s, "ml-3", "ML-CCC")
	if err := s.SetMicrolotActive(ctx, "ml-3", false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetIntegrityFlag(ctx, "ml-2", &model.IntegrityFlag{BrokenAtBlock: 1}); err != nil {
		t.Fatal(err)
	}

	flagged := true
	for _, tc := range []struct {
		name   string
		filter model.MicrolotFilter
		want   int
	}{
		{"ActiveOnly", model.MicrolotFilter{}, 2},
		{"IncludeInactive", model.MicrolotFilter{IncludeInactive: true}, 3},
		{"Search", model.MicrolotFilter{Search: "bbb"}, 1},
		{"Flagged", model.MicrolotFilter{Flagged: &flagged}, 1},
		{"Status", model.MicrolotFilter{Status: []model.Status{model.StatusDrying}}, 0},
		{"Limit", model.MicrolotFilter{IncludeInactive: true, Limit: 2}, 2},
		{"OffsetPastEnd", model.MicrolotFilter{Offset: 5}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := s.ListMicrolots(ctx, tc.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tc.want {
				t.Errorf("got %d microlots, want %d", len(got), tc.want)
			}
		})
	}

	_, total, _ := s.ListMicrolots(ctx, model.MicrolotFilter{IncludeInactive: true, Limit: 1})
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	sorted, _, _ := s.ListMicrolots(ctx, model.MicrolotFilter{IncludeInactive: true, Sort: "-code"})
	if sorted[0].Code != "ML-CCC" {
		t.Errorf("sort -code: first = %s", sorted[0].Code)
	}
}

func TestCorrupt(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")
	if err := s.AppendEvent(ctx, event("ml-1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Corrupt("ml-1", 1, func(e *model.TraceabilityEvent) { e.Description = "forged" }); err != nil {
		t.Fatal(err)
	}
	events, _ := s.ListEvents(ctx, "ml-1")
	if events[0].Description != "forged" {
		t.Fatalf("expected forged description, got %q", events[0].Description)
	}
	if err := s.Corrupt("ml-1", 9, func(*model.TraceabilityEvent) {}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCertificationRevoke(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")
	c := &model.CertificationRecord{
		ID: "cert-1", MicrolotID: "ml-1", Type: "ORGANIC",
		IssueDate: time.Now().Add(-time.Hour), ExpiryDate: time.Now().Add(time.Hour),
	}
	if err := s.CreateCertification(ctx, c); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if err := s.RevokeCertification(ctx, "cert-1", now, "admin", "fraud"); err != nil {
		t.Fatal(err)
	}
	if err := s.RevokeCertification(ctx, "cert-1", now, "admin", "again"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second revoke: expected ErrNotFound, got %v", err)
	}
	got, _ := s.GetCertification(ctx, "cert-1")
	if got.RevokedAt == nil || got.RevocationReason != "fraud" {
		t.Fatalf("revocation not stored: %+v", got)
	}
}

func TestGetLot_JoinsFarm(t *testing.T) {
	s := New()
	s.PutFarm(model.Farm{ID: "F1", Name: "Finca"})
	s.PutLot(model.Lot{ID: "L1", FarmID: "F1", Name: "North"})

	lot, err := s.GetLot(context.Background(), "L1")
	if err != nil {
		t.Fatal(err)
	}
	if lot.Farm == nil || lot.Farm.Name != "Finca" {
		t.Fatalf("farm not joined: %+v", lot.Farm)
	}
}

func TestGetStats(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedMicrolot(t, s, "ml-1", "ML-A")
	seedMicrolot(t, s, "ml-2", "ML-B")
	_ = s.AppendEvent(ctx, event("ml-1", 1))
	_ = s.CreateQualityRecord(ctx, &model.QualityControlRecord{ID: "qc-1", MicrolotID: "ml-1", Passed: true})
	_ = s.CreateQualityRecord(ctx, &model.QualityControlRecord{ID: "qc-2", MicrolotID: "ml-1", Passed: false})

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalMicrolots != 2 || stats.TotalEvents != 1 || stats.QualityPassed != 1 || stats.QualityFailed != 1 {
		t.Fatalf("got %+v", stats)
	}
	if stats.ByStatus[model.StatusHarvested] != 2 {
		t.Fatalf("by status = %v", stats.ByStatus)
	}
}
