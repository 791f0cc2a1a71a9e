package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// microlotColumns is the column list used for SELECT statements on the microlots table.
const microlotColumns = `id, code, lot_ref, harvest_ref, quantity_kg, quality_grade,
	status, is_active, tail_block, integrity_flag, created_at, created_by, updated_at`

// eventColumns is the column list used for SELECT statements on the traceability_events table.
const eventColumns = `id, microlot_id, block_number, event_type, event_date, description,
	metadata, responsible_actor_id, previous_hash, current_hash`

const qualityColumns = `id, microlot_id, test_type, measurements, passed, tester_id,
	test_date, notes, event_block, created_at`

const certificationColumns = `id, microlot_id, type, issuing_body, certificate_number,
	issue_date, expiry_date, revoked_at, revoked_by, revocation_reason, created_at, created_by`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateMicrolot(ctx context.Context, db executor, m *model.Microlot) error {
	flag, err := jsonbValue(m.IntegrityFlag)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO microlots (
			id, code, lot_ref, harvest_ref, quantity_kg, quality_grade,
			status, is_active, tail_block, integrity_flag, created_at, created_by, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13
		)`,
		m.ID,
		m.Code,
		m.LotRef,
		m.HarvestRef,
		m.QuantityKg,
		m.QualityGrade,
		string(m.Status),
		m.IsActive,
		m.TailBlock,
		flag,
		m.CreatedAt,
		nullString(m.CreatedBy),
		m.UpdatedAt,
	)
	return mapError(err)
}

func queryGetMicrolot(ctx context.Context, db executor, id string) (*model.Microlot, error) {
	row := db.QueryRowContext(ctx, `SELECT `+microlotColumns+` FROM microlots WHERE id = $1`, id)
	m, err := scanMicrolot(row)
	return m, mapError(err)
}

func queryGetMicrolotByCode(ctx context.Context, db executor, code string) (*model.Microlot, error) {
	row := db.QueryRowContext(ctx, `SELECT `+microlotColumns+` FROM microlots WHERE code = $1`, code)
	m, err := scanMicrolot(row)
	return m, mapError(err)
}

func queryLockMicrolot(ctx context.Context, db executor, id string) (*model.Microlot, error) {
	row := db.QueryRowContext(ctx, `SELECT `+microlotColumns+` FROM microlots WHERE id = $1 FOR UPDATE`, id)
	m, err := scanMicrolot(row)
	return m, mapError(err)
}

func queryListMicrolots(ctx context.Context, db executor, filter model.MicrolotFilter) ([]*model.Microlot, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if !filter.IncludeInactive {
		whereClauses = append(whereClauses, "is_active")
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.QualityGrade) > 0 {
		placeholders := make([]string, len(filter.QualityGrade))
		for i, g := range filter.QualityGrade {
			placeholders[i] = nextArg()
			args = append(args, g)
		}
		whereClauses = append(whereClauses, "quality_grade IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.LotRef != "" {
		whereClauses = append(whereClauses, "lot_ref = "+nextArg())
		args = append(args, filter.LotRef)
	}

	if filter.HarvestRef != "" {
		whereClauses = append(whereClauses, "harvest_ref = "+nextArg())
		args = append(args, filter.HarvestRef)
	}

	if filter.Flagged != nil {
		if *filter.Flagged {
			whereClauses = append(whereClauses, "integrity_flag IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "integrity_flag IS NULL")
		}
	}

	if filter.Search != "" {
		p := nextArg()
		whereClauses = append(whereClauses, fmt.Sprintf("code ILIKE '%%' || %s || '%%'", p))
		args = append(args, filter.Search)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + microlotColumns + " FROM microlots" + whereSQL + " ORDER BY " + parseSortClause(filter.Sort)

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list microlots: %w", err)
	}
	defer rows.Close()

	var microlots []*model.Microlot
	var total int
	for rows.Next() {
		m, t, err := scanMicrolotWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan microlots: %w", err)
		}
		total = t
		microlots = append(microlots, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan microlots: %w", err)
	}

	return microlots, total, nil
}

func queryUpdateMicrolotStatus(ctx context.Context, db executor, id string, status model.Status, tailBlock int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE microlots
		SET status = $2, tail_block = $3, updated_at = NOW()
		WHERE id = $1 AND tail_block = $4`,
		id, string(status), tailBlock, tailBlock-1,
	)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: tail of %s moved past block %d", store.ErrConflict, id, tailBlock-1)
	}
	return nil
}

func querySetMicrolotActive(ctx context.Context, db executor, id string, active bool) error {
	res, err := db.ExecContext(ctx, `
		UPDATE microlots SET is_active = $2, updated_at = NOW()
		WHERE id = $1`,
		id, active,
	)
	return requireRow(res, err)
}

func querySetIntegrityFlag(ctx context.Context, db executor, id string, flag *model.IntegrityFlag) error {
	v, err := jsonbValue(flag)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE microlots SET integrity_flag = $2, updated_at = NOW()
		WHERE id = $1`,
		id, v,
	)
	return requireRow(res, err)
}

func queryAppendEvent(ctx context.Context, db executor, e *model.TraceabilityEvent) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO traceability_events (
			id, microlot_id, block_number, event_type, event_date, description,
			metadata, responsible_actor_id, previous_hash, current_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)`,
		e.ID,
		e.MicrolotID,
		e.BlockNumber,
		string(e.EventType),
		e.EventDate,
		e.Description,
		metadata,
		e.ResponsibleActorID,
		nullStringPtr(e.PreviousHash),
		e.CurrentHash,
	)
	return mapError(err)
}

func queryGetChainTail(ctx context.Context, db executor, microlotID string) (*model.TraceabilityEvent, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM traceability_events
		WHERE microlot_id = $1
		ORDER BY block_number DESC
		LIMIT 1`, microlotID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func queryListEvents(ctx context.Context, db executor, microlotID string) ([]*model.TraceabilityEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM traceability_events
		WHERE microlot_id = $1
		ORDER BY block_number ASC`,
		microlotID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryCreateQualityRecord(ctx context.Context, db executor, r *model.QualityControlRecord) error {
	measurements, err := json.Marshal(r.Measurements)
	if err != nil {
		return fmt.Errorf("marshal measurements: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO quality_control_records (
			id, microlot_id, test_type, measurements, passed, tester_id,
			test_date, notes, event_block, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID,
		r.MicrolotID,
		string(r.TestType),
		measurements,
		r.Passed,
		r.TesterID,
		r.TestDate,
		nullString(r.Notes),
		r.EventBlock,
		r.CreatedAt,
	)
	return mapError(err)
}

func queryListQualityRecords(ctx context.Context, db executor, microlotID string) ([]*model.QualityControlRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+qualityColumns+`
		FROM quality_control_records
		WHERE microlot_id = $1
		ORDER BY test_date ASC, event_block ASC`,
		microlotID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQualityRecords(rows)
}

func queryCreateCertification(ctx context.Context, db executor, c *model.CertificationRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO certifications (
			id, microlot_id, type, issuing_body, certificate_number,
			issue_date, expiry_date, revoked_at, revoked_by, revocation_reason, created_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID,
		c.MicrolotID,
		c.Type,
		c.IssuingBody,
		c.CertificateNumber,
		c.IssueDate,
		c.ExpiryDate,
		nullTimePtr(c.RevokedAt),
		nullString(c.RevokedBy),
		nullString(c.RevocationReason),
		c.CreatedAt,
		nullString(c.CreatedBy),
	)
	return mapError(err)
}

func queryGetCertification(ctx context.Context, db executor, id string) (*model.CertificationRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+certificationColumns+` FROM certifications WHERE id = $1`, id)
	c, err := scanCertification(row)
	return c, mapError(err)
}

func queryListCertifications(ctx context.Context, db executor, microlotID string) ([]*model.CertificationRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+certificationColumns+`
		FROM certifications
		WHERE microlot_id = $1
		ORDER BY issue_date ASC, created_at ASC`,
		microlotID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCertifications(rows)
}

func queryRevokeCertification(ctx context.Context, db executor, id string, at time.Time, by, reason string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE certifications
		SET revoked_at = $2, revoked_by = $3, revocation_reason = $4
		WHERE id = $1 AND revoked_at IS NULL`,
		id, at, nullString(by), nullString(reason),
	)
	return requireRow(res, err)
}

func queryGetLot(ctx context.Context, db executor, id string) (*model.Lot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT l.id, l.farm_id, l.name, l.variety,
			f.id, f.name, f.owner_name, f.region, f.country, f.latitude, f.longitude, f.altitude_m
		FROM lots l
		JOIN farms f ON f.id = l.farm_id
		WHERE l.id = $1`, id)
	l, err := scanLot(row)
	return l, mapError(err)
}

func queryGetHarvest(ctx context.Context, db executor, id string) (*model.Harvest, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, lot_id, harvest_date, picker_count, notes
		FROM harvests WHERE id = $1`, id)
	h, err := scanHarvest(row)
	return h, mapError(err)
}

func queryGetStats(ctx context.Context, db executor) (*model.Stats, error) {
	stats := &model.Stats{ByStatus: make(map[model.Status]int)}

	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM microlots),
			(SELECT COUNT(*) FROM microlots WHERE is_active),
			(SELECT COUNT(*) FROM traceability_events),
			(SELECT COUNT(*) FROM quality_control_records WHERE passed),
			(SELECT COUNT(*) FROM quality_control_records WHERE NOT passed),
			(SELECT COUNT(*) FROM certifications),
			(SELECT COUNT(*) FROM microlots WHERE integrity_flag IS NOT NULL)`,
	).Scan(
		&stats.TotalMicrolots,
		&stats.ActiveMicrolots,
		&stats.TotalEvents,
		&stats.QualityPassed,
		&stats.QualityFailed,
		&stats.Certifications,
		&stats.IntegrityFlagged,
	)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM microlots
		WHERE is_active
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("get stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByStatus[model.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan stats: %w", err)
	}
	return stats, nil
}

// requireRow maps an UPDATE that touched no rows to store.ErrNotFound.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func parseSortClause(sort string) string {
	if sort == "" {
		return "created_at DESC"
	}
	desc := strings.HasPrefix(sort, "-")
	col := strings.TrimPrefix(sort, "-")
	allowed := map[string]bool{
		"created_at": true, "updated_at": true, "quantity_kg": true,
		"code": true, "status": true, "quality_grade": true,
	}
	if !allowed[col] {
		return "created_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}
