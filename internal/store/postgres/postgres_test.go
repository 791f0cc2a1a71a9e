package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var microlotRowColumns = []string{
	"id", "code", "lot_ref", "harvest_ref", "quantity_kg", "quality_grade",
	"status", "is_active", "tail_block", "integrity_flag", "created_at", "created_by", "updated_at",
}

var eventRowColumns = []string{
	"id", "microlot_id", "block_number", "event_type", "event_date", "description",
	"metadata", "responsible_actor_id", "previous_hash", "current_hash",
}

var certificationRowColumns = []string{
	"id", "microlot_id", "type", "issuing_body", "certificate_number",
	"issue_date", "expiry_date", "revoked_at", "revoked_by", "revocation_reason", "created_at", "created_by",
}

func addMicrolotRow(rows *sqlmock.Rows, id, code, status string, tail int64, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, code, "L1", "H1", 250.0, "AA", status, true, tail, nil, now, "alice", now)
}

func TestParseSortClause(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  string
	}{
		{"", "created_at DESC"},
		{"quantity_kg", "quantity_kg ASC"},
		{"-quantity_kg", "quantity_kg DESC"},
		{"code", "code ASC"},
		{"evil_column", "created_at DESC"},
		{"-evil_column; DROP TABLE microlots", "created_at DESC"},
	} {
		if got := parseSortClause(tc.input); got != tc.want {
			t.Errorf("parseSortClause(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestScanHelpers(t *testing.T) {
	if nullTimePtr(nil).Valid {
		t.Error("nullTimePtr(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTimePtr(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTimePtr(now) = %v", nt)
	}

	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullStringPtr(nil); ns.Valid {
		t.Error("nullStringPtr(nil) should be invalid")
	}
	h := "abc"
	if ns := nullStringPtr(&h); !ns.Valid || ns.String != "abc" {
		t.Errorf("nullStringPtr(&abc) = %v", ns)
	}

	if b, err := jsonbValue[model.IntegrityFlag](nil); err != nil || b != nil {
		t.Errorf("jsonbValue(nil) = %v, %v", b, err)
	}
	b, err := jsonbValue(&model.IntegrityFlag{BrokenAtBlock: 3, Reason: "hash mismatch"})
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 {
		t.Error("jsonbValue(flag) should not be empty")
	}
}

func TestMapError(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   error
		want error
	}{
		{"NoRows", sql.ErrNoRows, store.ErrNotFound},
		{"Serialization", &pq.Error{Code: "40001", Message: "could not serialize access"}, store.ErrConflict},
		{"Deadlock", &pq.Error{Code: "40P01", Message: "deadlock detected"}, store.ErrConflict},
		{"UniqueViolation", &pq.Error{Code: "23505", Message: "duplicate key"}, store.ErrConflict},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapError(tc.in); !errors.Is(got, tc.want) {
				t.Errorf("mapError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	other := &pq.Error{Code: "23503", Message: "foreign key violation"}
	if got := mapError(other); got != error(other) {
		t.Errorf("mapError should pass through unrelated errors, got %v", got)
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestQueryCreateMicrolot(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	m := &model.Microlot{
		ID: "ml-1", Code: "ML-ABC-234567", LotRef: "L1", HarvestRef: "H1",
		QuantityKg: 250, QualityGrade: "AA", Status: model.StatusHarvested, IsActive: true,
		CreatedAt: now, CreatedBy: "alice", UpdatedAt: now,
	}
	mock.ExpectExec("INSERT INTO microlots").
		WithArgs("ml-1", "ML-ABC-234567", "L1", "H1", 250.0, "AA",
			"HARVESTED", true, int64(0), sqlmock.AnyArg(), now, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryCreateMicrolot(context.Background(), db, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryCreateMicrolot_DuplicateCode(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO microlots").
		WillReturnError(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "microlots_code_key"`})

	err := queryCreateMicrolot(context.Background(), db, &model.Microlot{ID: "ml-1", Code: "dup"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected store.ErrConflict, got %v", err)
	}
}

func TestQueryGetMicrolot(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(microlotRowColumns).AddRow(
		"ml-1", "ML-X-234567", "L1", "H1", 250.0, "AA", "DRYING", true, int64(3),
		[]byte(`{"broken_at_block":2,"reason":"hash mismatch","flagged_at":"2025-01-01T00:00:00Z"}`),
		now, nil, now,
	)
	mock.ExpectQuery("SELECT .+ FROM microlots WHERE id = \\$1").WithArgs("ml-1").WillReturnRows(rows)

	m, err := queryGetMicrolot(context.Background(), db, "ml-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != model.StatusDrying || m.TailBlock != 3 {
		t.Fatalf("got status=%s tail=%d", m.Status, m.TailBlock)
	}
	if m.IntegrityFlag == nil || m.IntegrityFlag.BrokenAtBlock != 2 {
		t.Fatalf("expected integrity flag at block 2, got %+v", m.IntegrityFlag)
	}
	if m.CreatedBy != "" {
		t.Fatalf("expected empty created_by, got %q", m.CreatedBy)
	}
}

func TestQueryGetMicrolot_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM microlots WHERE id = \\$1").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := queryGetMicrolot(context.Background(), db, "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQueryGetMicrolotByCode(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := addMicrolotRow(sqlmock.NewRows(microlotRowColumns), "ml-1", "ML-X-234567", "HARVESTED", 1, now)
	mock.ExpectQuery("SELECT .+ FROM microlots WHERE code = \\$1").WithArgs("ML-X-234567").WillReturnRows(rows)

	m, err := queryGetMicrolotByCode(context.Background(), db, "ML-X-234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "ml-1" {
		t.Fatalf("got id=%q", m.ID)
	}
}

func TestQueryLockMicrolot(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := addMicrolotRow(sqlmock.NewRows(microlotRowColumns), "ml-1", "ML-X-234567", "HARVESTED", 1, now)
	mock.ExpectQuery("SELECT .+ FROM microlots WHERE id = \\$1 FOR UPDATE").WithArgs("ml-1").WillReturnRows(rows)

	if _, err := queryLockMicrolot(context.Background(), db, "ml-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryListMicrolots(t *testing.T) {
	now := time.Now().UTC()
	withTotal := append([]string{"total_count"}, microlotRowColumns...)

	t.Run("Defaults", func(t *testing.T) {
		db, mock := newMockDB(t)
		rows := sqlmock.NewRows(withTotal).
			AddRow(2, "ml-1", "ML-A-234567", "L1", "H1", 100.0, "AA", "HARVESTED", true, int64(1), nil, now, nil, now).
			AddRow(2, "ml-2", "ML-B-234567", "L1", "H1", 50.0, "AB", "DRYING", true, int64(3), nil, now, nil, now)
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) OVER\\(\\) AS total_count, .+ FROM microlots WHERE is_active ORDER BY created_at DESC").
			WillReturnRows(rows)

		microlots, total, err := queryListMicrolots(context.Background(), db, model.MicrolotFilter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != 2 || len(microlots) != 2 {
			t.Fatalf("got total=%d len=%d", total, len(microlots))
		}
	})

	t.Run("AllFilters", func(t *testing.T) {
		db, mock := newMockDB(t)
		flagged := true
		filter := model.MicrolotFilter{
			Status:          []model.Status{model.StatusDrying, model.StatusStored},
			QualityGrade:    []string{"AA"},
			LotRef:          "L1",
			HarvestRef:      "H1",
			IncludeInactive: true,
			Flagged:         &flagged,
			Search:          "ML-A",
			Sort:            "-quantity_kg",
			Limit:           10,
			Offset:          20,
		}
		mock.ExpectQuery("FROM microlots WHERE status IN \\(\\$1, \\$2\\) AND quality_grade IN \\(\\$3\\) AND lot_ref = \\$4 AND harvest_ref = \\$5 AND integrity_flag IS NOT NULL AND code ILIKE .+ ORDER BY quantity_kg DESC LIMIT \\$7 OFFSET \\$8").
			WithArgs("DRYING", "STORED", "AA", "L1", "H1", "ML-A", 10, 20).
			WillReturnRows(sqlmock.NewRows(withTotal))

		microlots, total, err := queryListMicrolots(context.Background(), db, filter)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != 0 || len(microlots) != 0 {
			t.Fatalf("got total=%d len=%d", total, len(microlots))
		}
	})
}

func TestQueryUpdateMicrolotStatus(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE microlots\\s+SET status = \\$2, tail_block = \\$3, updated_at = NOW\\(\\)\\s+WHERE id = \\$1 AND tail_block = \\$4").
		WithArgs("ml-1", "IN_PROCESSING", int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryUpdateMicrolotStatus(context.Background(), db, "ml-1", model.StatusInProcessing, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryUpdateMicrolotStatus_TailMoved(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE microlots").
		WithArgs("ml-1", "IN_PROCESSING", int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := queryUpdateMicrolotStatus(context.Background(), db, "ml-1", model.StatusInProcessing, 2)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected store.ErrConflict, got %v", err)
	}
}

func TestQuerySetMicrolotActive_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE microlots SET is_active = \\$2").WithArgs("nope", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := querySetMicrolotActive(context.Background(), db, "nope", false); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQuerySetIntegrityFlag(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE microlots SET integrity_flag = \\$2").WithArgs("ml-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE microlots SET integrity_flag = \\$2").WithArgs("ml-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	flag := &model.IntegrityFlag{BrokenAtBlock: 4, Reason: "hash mismatch", FlaggedAt: time.Now().UTC()}
	if err := querySetIntegrityFlag(context.Background(), db, "ml-1", flag); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := querySetIntegrityFlag(context.Background(), db, "ml-1", nil); err != nil {
		t.Fatalf("clear flag: %v", err)
	}
}

func TestQueryAppendEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	prev := "aaaa"
	e := &model.TraceabilityEvent{
		ID: "ev-2", MicrolotID: "ml-1", BlockNumber: 2, EventType: model.EventInProcessing,
		EventDate: now, Description: "pulped", ResponsibleActorID: "alice",
		PreviousHash: &prev, CurrentHash: "bbbb",
	}
	mock.ExpectExec("INSERT INTO traceability_events").
		WithArgs("ev-2", "ml-1", int64(2), "IN_PROCESSING", now, "pulped",
			sqlmock.AnyArg(), "alice", "aaaa", "bbbb").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryAppendEvent(context.Background(), db, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryAppendEvent_DuplicateBlock(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO traceability_events").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := queryAppendEvent(context.Background(), db, &model.TraceabilityEvent{ID: "ev-2", MicrolotID: "ml-1", BlockNumber: 2})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected store.ErrConflict, got %v", err)
	}
}

func TestQueryGetChainTail(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(eventRowColumns).
		AddRow("ev-2", "ml-1", int64(2), "IN_PROCESSING", now, "pulped",
			[]byte(`{"process":{"method":"washed"}}`), "alice", "aaaa", "bbbb")
	mock.ExpectQuery("SELECT .+ FROM traceability_events\\s+WHERE microlot_id = \\$1\\s+ORDER BY block_number DESC\\s+LIMIT 1").
		WithArgs("ml-1").WillReturnRows(rows)

	tail, err := queryGetChainTail(context.Background(), db, "ml-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tail.BlockNumber != 2 || tail.PreviousHash == nil || *tail.PreviousHash != "aaaa" {
		t.Fatalf("got block=%d prev=%v", tail.BlockNumber, tail.PreviousHash)
	}
	if tail.Metadata.Process == nil || tail.Metadata.Process.Method != "washed" {
		t.Fatalf("metadata not decoded: %+v", tail.Metadata)
	}
}

func TestQueryGetChainTail_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM traceability_events").WithArgs("ml-1").WillReturnError(sql.ErrNoRows)

	tail, err := queryGetChainTail(context.Background(), db, "ml-1")
	if err != nil || tail != nil {
		t.Fatalf("expected nil tail and nil error, got %v, %v", tail, err)
	}
}

func TestQueryListEvents(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(eventRowColumns).
		AddRow("ev-1", "ml-1", int64(1), "HARVEST", now, "genesis", []byte(`{}`), "alice", nil, "aaaa").
		AddRow("ev-2", "ml-1", int64(2), "IN_PROCESSING", now, "pulped", []byte(`{}`), "bob", "aaaa", "bbbb")
	mock.ExpectQuery("SELECT .+ FROM traceability_events\\s+WHERE microlot_id = \\$1\\s+ORDER BY block_number ASC").
		WithArgs("ml-1").WillReturnRows(rows)

	events, err := queryListEvents(context.Background(), db, "ml-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].PreviousHash != nil {
		t.Fatalf("genesis previous_hash should be nil, got %v", *events[0].PreviousHash)
	}
	if events[1].ResponsibleActorID != "bob" {
		t.Fatalf("got actor %q", events[1].ResponsibleActorID)
	}
}

func TestQueryQualityRecords(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	moisture := 10.5
	r := &model.QualityControlRecord{
		ID: "qc-1", MicrolotID: "ml-1", TestType: model.TestPhysical,
		Measurements: model.Measurements{MoisturePct: &moisture}, Passed: true,
		TesterID: "lab-1", TestDate: now, EventBlock: 3, CreatedAt: now,
	}
	mock.ExpectExec("INSERT INTO quality_control_records").
		WithArgs("qc-1", "ml-1", "PHYSICAL", sqlmock.AnyArg(), true, "lab-1", now, sqlmock.AnyArg(), int64(3), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM quality_control_records\\s+WHERE microlot_id = \\$1").WithArgs("ml-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "microlot_id", "test_type", "measurements", "passed", "tester_id",
			"test_date", "notes", "event_block", "created_at",
		}).AddRow("qc-1", "ml-1", "PHYSICAL", []byte(`{"moisture":10.5,"defects":2}`), true, "lab-1", now, nil, int64(3), now))

	if err := queryCreateQualityRecord(context.Background(), db, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	records, err := queryListQualityRecords(context.Background(), db, "ml-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0].Measurements
	if got.MoisturePct == nil || *got.MoisturePct != 10.5 || got.Defects == nil || *got.Defects != 2 {
		t.Fatalf("measurements not decoded: %+v", got)
	}
}

func TestQueryCertifications(t *testing.T) {
	db, mock := newMockDB(t)
	issue := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := issue.AddDate(1, 0, 0)
	revoked := issue.AddDate(0, 6, 0)

	mock.ExpectQuery("SELECT .+ FROM certifications WHERE id = \\$1").WithArgs("cert-1").
		WillReturnRows(sqlmock.NewRows(certificationRowColumns).AddRow(
			"cert-1", "ml-1", "ORGANIC", "Control Union", "CU-1",
			issue, expiry, revoked, "admin", "fraud", issue, "alice",
		))

	c, err := queryGetCertification(context.Background(), db, "cert-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.RevokedAt == nil || !c.RevokedAt.Equal(revoked) || c.RevokedBy != "admin" {
		t.Fatalf("revocation not scanned: %+v", c)
	}
	if c.StatusAt(issue.AddDate(0, 1, 0)) != model.CertificationRevoked {
		t.Fatal("expected REVOKED")
	}
}

func TestQueryRevokeCertification_AlreadyRevoked(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE certifications\\s+SET revoked_at = \\$2, revoked_by = \\$3, revocation_reason = \\$4\\s+WHERE id = \\$1 AND revoked_at IS NULL").
		WithArgs("cert-1", now, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := queryRevokeCertification(context.Background(), db, "cert-1", now, "admin", "fraud")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQueryGetLot(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM lots l\\s+JOIN farms f ON f.id = l.farm_id\\s+WHERE l.id = \\$1").WithArgs("L1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "farm_id", "name", "variety",
			"id", "name", "owner_name", "region", "country", "latitude", "longitude", "altitude_m",
		}).AddRow("L1", "F1", "North slope", "Geisha", "F1", "Finca Esperanza", "Ana", "Huila", "CO", 2.1, -75.9, nil))

	lot, err := queryGetLot(context.Background(), db, "L1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lot.Farm == nil || lot.Farm.Name != "Finca Esperanza" {
		t.Fatalf("farm not joined: %+v", lot.Farm)
	}
	if lot.Farm.Latitude == nil || *lot.Farm.Latitude != 2.1 {
		t.Fatalf("latitude = %v", lot.Farm.Latitude)
	}
	if lot.Farm.AltitudeM != nil {
		t.Fatalf("altitude should be nil, got %v", *lot.Farm.AltitudeM)
	}
}

func TestQueryGetHarvest_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM harvests WHERE id = \\$1").WithArgs("H9").WillReturnError(sql.ErrNoRows)

	if _, err := queryGetHarvest(context.Background(), db, "H9"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQueryGetStats(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"total", "active", "events", "passed", "failed", "certs", "flagged"}).
			AddRow(5, 4, 30, 6, 2, 3, 1),
	)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM microlots`).WillReturnRows(
		sqlmock.NewRows([]string{"status", "count"}).
			AddRow("HARVESTED", 1).
			AddRow("DRYING", 3),
	)

	stats, err := queryGetStats(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalMicrolots != 5 || stats.ActiveMicrolots != 4 || stats.TotalEvents != 30 {
		t.Fatalf("got %+v", stats)
	}
	if stats.IntegrityFlagged != 1 {
		t.Fatalf("expected 1 flagged, got %d", stats.IntegrityFlagged)
	}
	if stats.ByStatus[model.StatusDrying] != 3 {
		t.Fatalf("expected 3 drying, got %d", stats.ByStatus[model.StatusDrying])
	}
}

func TestRunInTransaction(t *testing.T) {
	t.Run("Commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := &PostgresStore{db: db}
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE microlots SET is_active").WithArgs("ml-1", false).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
			return tx.SetMicrolotActive(context.Background(), "ml-1", false)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := &PostgresStore{db: db}
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := s.RunInTransaction(context.Background(), func(tx store.Store) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})

	t.Run("SerializationFailureAtCommit", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := &PostgresStore{db: db}
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

		err := s.RunInTransaction(context.Background(), func(tx store.Store) error { return nil })
		if !errors.Is(err, store.ErrConflict) {
			t.Fatalf("expected store.ErrConflict, got %v", err)
		}
	})
}
