package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// microlotFields holds the nullable intermediates for a microlot row.
type microlotFields struct {
	createdBy sql.NullString
	flag      []byte
}

func (f *microlotFields) dest(m *model.Microlot) []any {
	return []any{
		&m.ID,
		&m.Code,
		&m.LotRef,
		&m.HarvestRef,
		&m.QuantityKg,
		&m.QualityGrade,
		&m.Status,
		&m.IsActive,
		&m.TailBlock,
		&f.flag,
		&m.CreatedAt,
		&f.createdBy,
		&m.UpdatedAt,
	}
}

func (f *microlotFields) apply(m *model.Microlot) error {
	m.CreatedBy = f.createdBy.String
	if len(f.flag) > 0 {
		var flag model.IntegrityFlag
		if err := json.Unmarshal(f.flag, &flag); err != nil {
			return fmt.Errorf("decode integrity_flag: %w", err)
		}
		m.IntegrityFlag = &flag
	}
	return nil
}

// scanMicrolot scans a single row into a model.Microlot.
// The row must contain columns in the order defined by microlotColumns.
func scanMicrolot(row scannable) (*model.Microlot, error) {
	var m model.Microlot
	var f microlotFields
	if err := row.Scan(f.dest(&m)...); err != nil {
		return nil, err
	}
	if err := f.apply(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// scanMicrolotWithTotal scans a row that has a leading total_count column
// followed by the standard microlot columns. Used by queryListMicrolots with
// COUNT(*) OVER().
func scanMicrolotWithTotal(row scannable) (*model.Microlot, int, error) {
	var total int
	var m model.Microlot
	var f microlotFields
	if err := row.Scan(append([]any{&total}, f.dest(&m)...)...); err != nil {
		return nil, 0, err
	}
	if err := f.apply(&m); err != nil {
		return nil, 0, err
	}
	return &m, total, nil
}

// scanEvent scans a single row into a model.TraceabilityEvent.
func scanEvent(row scannable) (*model.TraceabilityEvent, error) {
	var e model.TraceabilityEvent
	var (
		metadata     []byte
		previousHash sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&e.MicrolotID,
		&e.BlockNumber,
		&e.EventType,
		&e.EventDate,
		&e.Description,
		&metadata,
		&e.ResponsibleActorID,
		&previousHash,
		&e.CurrentHash,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of block %d: %w", e.BlockNumber, err)
		}
	}
	if previousHash.Valid {
		h := previousHash.String
		e.PreviousHash = &h
	}
	e.EventDate = e.EventDate.UTC()
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.TraceabilityEvent pointers.
func scanEvents(rows *sql.Rows) ([]*model.TraceabilityEvent, error) {
	var events []*model.TraceabilityEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func scanQualityRecord(row scannable) (*model.QualityControlRecord, error) {
	var r model.QualityControlRecord
	var (
		measurements []byte
		notes        sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&r.MicrolotID,
		&r.TestType,
		&measurements,
		&r.Passed,
		&r.TesterID,
		&r.TestDate,
		&notes,
		&r.EventBlock,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(measurements) > 0 {
		if err := json.Unmarshal(measurements, &r.Measurements); err != nil {
			return nil, fmt.Errorf("decode measurements: %w", err)
		}
	}
	r.Notes = notes.String
	return &r, nil
}

func scanQualityRecords(rows *sql.Rows) ([]*model.QualityControlRecord, error) {
	var records []*model.QualityControlRecord
	for rows.Next() {
		r, err := scanQualityRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanCertification(row scannable) (*model.CertificationRecord, error) {
	var c model.CertificationRecord
	var (
		revokedAt sql.NullTime
		revokedBy sql.NullString
		reason    sql.NullString
		createdBy sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.MicrolotID,
		&c.Type,
		&c.IssuingBody,
		&c.CertificateNumber,
		&c.IssueDate,
		&c.ExpiryDate,
		&revokedAt,
		&revokedBy,
		&reason,
		&c.CreatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	c.RevokedBy = revokedBy.String
	c.RevocationReason = reason.String
	c.CreatedBy = createdBy.String
	return &c, nil
}

func scanCertifications(rows *sql.Rows) ([]*model.CertificationRecord, error) {
	var certs []*model.CertificationRecord
	for rows.Next() {
		c, err := scanCertification(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return certs, nil
}

// scanLot scans a lot row joined with its farm.
func scanLot(row scannable) (*model.Lot, error) {
	var l model.Lot
	var f model.Farm
	var (
		variety   sql.NullString
		owner     sql.NullString
		region    sql.NullString
		country   sql.NullString
		latitude  sql.NullFloat64
		longitude sql.NullFloat64
		altitude  sql.NullFloat64
	)
	err := row.Scan(
		&l.ID, &l.FarmID, &l.Name, &variety,
		&f.ID, &f.Name, &owner, &region, &country, &latitude, &longitude, &altitude,
	)
	if err != nil {
		return nil, err
	}
	l.Variety = variety.String
	f.OwnerName = owner.String
	f.Region = region.String
	f.Country = country.String
	f.Latitude = nullFloatPtr(latitude)
	f.Longitude = nullFloatPtr(longitude)
	f.AltitudeM = nullFloatPtr(altitude)
	l.Farm = &f
	return &l, nil
}

func scanHarvest(row scannable) (*model.Harvest, error) {
	var h model.Harvest
	var notes sql.NullString
	if err := row.Scan(&h.ID, &h.LotID, &h.HarvestDate, &h.PickerCount, &notes); err != nil {
		return nil, err
	}
	h.Notes = notes.String
	return &h, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringPtr converts a *string to sql.NullString; nil is null.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// jsonbValue marshals v for a nullable JSONB column; a nil pointer is stored as NULL.
func jsonbValue[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}
