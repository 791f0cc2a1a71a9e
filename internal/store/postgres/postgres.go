// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db            *sql.DB
	schemaVersion uint
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := runMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db, schemaVersion: version}, nil
}

func runMigrations(db *sql.DB) (uint, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// SchemaVersion returns the migration version applied when the store was opened.
func (s *PostgresStore) SchemaVersion() uint {
	return s.schemaVersion
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateMicrolot(ctx context.Context, m *model.Microlot) error {
	return queryCreateMicrolot(ctx, s.db, m)
}

func (s *PostgresStore) GetMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	return queryGetMicrolot(ctx, s.db, id)
}

func (s *PostgresStore) GetMicrolotByCode(ctx context.Context, code string) (*model.Microlot, error) {
	return queryGetMicrolotByCode(ctx, s.db, code)
}

func (s *PostgresStore) ListMicrolots(ctx context.Context, filter model.MicrolotFilter) ([]*model.Microlot, int, error) {
	return queryListMicrolots(ctx, s.db, filter)
}

func (s *PostgresStore) LockMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	return queryLockMicrolot(ctx, s.db, id)
}

func (s *PostgresStore) UpdateMicrolotStatus(ctx context.Context, id string, status model.Status, tailBlock int64) error {
	return queryUpdateMicrolotStatus(ctx, s.db, id, status, tailBlock)
}

func (s *PostgresStore) SetMicrolotActive(ctx context.Context, id string, active bool) error {
	return querySetMicrolotActive(ctx, s.db, id, active)
}

func (s *PostgresStore) SetIntegrityFlag(ctx context.Context, id string, flag *model.IntegrityFlag) error {
	return querySetIntegrityFlag(ctx, s.db, id, flag)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.TraceabilityEvent) error {
	return queryAppendEvent(ctx, s.db, e)
}

func (s *PostgresStore) GetChainTail(ctx context.Context, microlotID string) (*model.TraceabilityEvent, error) {
	return queryGetChainTail(ctx, s.db, microlotID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error) {
	return queryListEvents(ctx, s.db, microlotID)
}

func (s *PostgresStore) CreateQualityRecord(ctx context.Context, r *model.QualityControlRecord) error {
	return queryCreateQualityRecord(ctx, s.db, r)
}

func (s *PostgresStore) ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error) {
	return queryListQualityRecords(ctx, s.db, microlotID)
}

func (s *PostgresStore) CreateCertification(ctx context.Context, c *model.CertificationRecord) error {
	return queryCreateCertification(ctx, s.db, c)
}

func (s *PostgresStore) GetCertification(ctx context.Context, id string) (*model.CertificationRecord, error) {
	return queryGetCertification(ctx, s.db, id)
}

func (s *PostgresStore) ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error) {
	return queryListCertifications(ctx, s.db, microlotID)
}

func (s *PostgresStore) RevokeCertification(ctx context.Context, id string, at time.Time, by, reason string) error {
	return queryRevokeCertification(ctx, s.db, id, at, by, reason)
}

func (s *PostgresStore) GetLot(ctx context.Context, id string) (*model.Lot, error) {
	return queryGetLot(ctx, s.db, id)
}

func (s *PostgresStore) GetHarvest(ctx context.Context, id string) (*model.Harvest, error) {
	return queryGetHarvest(ctx, s.db, id)
}

func (s *PostgresStore) GetStats(ctx context.Context) (*model.Stats, error) {
	return queryGetStats(ctx, s.db)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
// A serialization failure at commit is reported as store.ErrConflict.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateMicrolot(ctx context.Context, m *model.Microlot) error {
	return queryCreateMicrolot(ctx, s.tx, m)
}

func (s *txStore) GetMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	return queryGetMicrolot(ctx, s.tx, id)
}

func (s *txStore) GetMicrolotByCode(ctx context.Context, code string) (*model.Microlot, error) {
	return queryGetMicrolotByCode(ctx, s.tx, code)
}

func (s *txStore) ListMicrolots(ctx context.Context, filter model.MicrolotFilter) ([]*model.Microlot, int, error) {
	return queryListMicrolots(ctx, s.tx, filter)
}

func (s *txStore) LockMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	return queryLockMicrolot(ctx, s.tx, id)
}

func (s *txStore) UpdateMicrolotStatus(ctx context.Context, id string, status model.Status, tailBlock int64) error {
	return queryUpdateMicrolotStatus(ctx, s.tx, id, status, tailBlock)
}

func (s *txStore) SetMicrolotActive(ctx context.Context, id string, active bool) error {
	return querySetMicrolotActive(ctx, s.tx, id, active)
}

func (s *txStore) SetIntegrityFlag(ctx context.Context, id string, flag *model.IntegrityFlag) error {
	return querySetIntegrityFlag(ctx, s.tx, id, flag)
}

func (s *txStore) AppendEvent(ctx context.Context, e *model.TraceabilityEvent) error {
	return queryAppendEvent(ctx, s.tx, e)
}

func (s *txStore) GetChainTail(ctx context.Context, microlotID string) (*model.TraceabilityEvent, error) {
	return queryGetChainTail(ctx, s.tx, microlotID)
}

func (s *txStore) ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error) {
	return queryListEvents(ctx, s.tx, microlotID)
}

func (s *txStore) CreateQualityRecord(ctx context.Context, r *model.QualityControlRecord) error {
	return queryCreateQualityRecord(ctx, s.tx, r)
}

func (s *txStore) ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error) {
	return queryListQualityRecords(ctx, s.tx, microlotID)
}

func (s *txStore) CreateCertification(ctx context.Context, c *model.CertificationRecord) error {
	return queryCreateCertification(ctx, s.tx, c)
}

func (s *txStore) GetCertification(ctx context.Context, id string) (*model.CertificationRecord, error) {
	return queryGetCertification(ctx, s.tx, id)
}

func (s *txStore) ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error) {
	return queryListCertifications(ctx, s.tx, microlotID)
}

func (s *txStore) RevokeCertification(ctx context.Context, id string, at time.Time, by, reason string) error {
	return queryRevokeCertification(ctx, s.tx, id, at, by, reason)
}

func (s *txStore) GetLot(ctx context.Context, id string) (*model.Lot, error) {
	return queryGetLot(ctx, s.tx, id)
}

func (s *txStore) GetHarvest(ctx context.Context, id string) (*model.Harvest, error) {
	return queryGetHarvest(ctx, s.tx, id)
}

func (s *txStore) GetStats(ctx context.Context) (*model.Stats, error) {
	return queryGetStats(ctx, s.tx)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
