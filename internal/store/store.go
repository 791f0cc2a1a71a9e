package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write lost a race with a concurrent
	// writer: a serialization failure, a deadlock, a unique violation, or a
	// chain tail that moved since it was read. The whole transaction may be
	// retried from a fresh read.
	ErrConflict = errors.New("store: conflict")
)

// Store defines the persistence interface for the traceability ledger.
type Store interface {
	// Microlots
	CreateMicrolot(ctx context.Context, m *model.Microlot) error
	GetMicrolot(ctx context.Context, id string) (*model.Microlot, error)
	GetMicrolotByCode(ctx context.Context, code string) (*model.Microlot, error)
	ListMicrolots(ctx context.Context, filter model.MicrolotFilter) ([]*model.Microlot, int, error) // returns microlots, total count, error
	// LockMicrolot reads the microlot and holds a write lock on it until the
	// surrounding transaction ends.
	LockMicrolot(ctx context.Context, id string) (*model.Microlot, error)
	// UpdateMicrolotStatus moves the cached status and tail pointer. It fails
	// with ErrConflict unless the stored tail is tailBlock-1.
	UpdateMicrolotStatus(ctx context.Context, id string, status model.Status, tailBlock int64) error
	SetMicrolotActive(ctx context.Context, id string, active bool) error
	SetIntegrityFlag(ctx context.Context, id string, flag *model.IntegrityFlag) error

	// Chain
	AppendEvent(ctx context.Context, e *model.TraceabilityEvent) error
	// GetChainTail returns the highest block of the chain, or nil if the chain is empty.
	GetChainTail(ctx context.Context, microlotID string) (*model.TraceabilityEvent, error)
	ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error)

	// Quality control
	CreateQualityRecord(ctx context.Context, r *model.QualityControlRecord) error
	ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error)

	// Certifications
	CreateCertification(ctx context.Context, c *model.CertificationRecord) error
	GetCertification(ctx context.Context, id string) (*model.CertificationRecord, error)
	ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error)
	RevokeCertification(ctx context.Context, id string, at time.Time, by, reason string) error

	// Reference data owned by the farm management system
	GetLot(ctx context.Context, id string) (*model.Lot, error)
	GetHarvest(ctx context.Context, id string) (*model.Harvest, error)

	GetStats(ctx context.Context) (*model.Stats, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
