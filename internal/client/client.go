// Package client provides a transport-agnostic interface for the cafetrace
// ledger service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/presence"
)

// LedgerClient is the interface that all ct CLI commands use to talk to the
// ledger server. Every call is made on behalf of the actor the client was
// built with.
type LedgerClient interface {
	// Microlots
	CreateMicrolot(ctx context.Context, in *ledger.CreateMicrolotInput) (*model.Microlot, error)
	GetMicrolot(ctx context.Context, id string) (*model.Microlot, error)
	ListMicrolots(ctx context.Context, f *model.MicrolotFilter) (*ListMicrolotsResponse, error)
	DeactivateMicrolot(ctx context.Context, id string) error

	// Chain
	AdvanceStatus(ctx context.Context, in *ledger.AppendInput) (*model.Microlot, error)
	AppendEvent(ctx context.Context, in *ledger.AppendInput) (*model.TraceabilityEvent, error)
	ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error)
	VerifyChain(ctx context.Context, microlotID string) (*ledger.Verification, error)
	ResolveIntegrity(ctx context.Context, microlotID, note string) (*ledger.Verification, error)

	// Quality and certifications
	RecordQualityControl(ctx context.Context, in *ledger.QualityInput) (*model.QualityControlRecord, error)
	ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error)
	AttachCertification(ctx context.Context, in *ledger.CertificationInput) (*model.CertificationRecord, error)
	RevokeCertification(ctx context.Context, certID, reason string) (*model.CertificationRecord, error)
	ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error)

	// Read side
	PublicView(ctx context.Context, code string) (*model.PublicView, error)
	Stats(ctx context.Context) (*model.Stats, error)
	Health(ctx context.Context) (string, error)
	Actors(ctx context.Context, stale time.Duration) ([]presence.Entry, error)

	// Lifecycle
	Close() error
}

// ListMicrolotsResponse is the response from ListMicrolots.
type ListMicrolotsResponse struct {
	Microlots []*model.Microlot `json:"microlots"`
	Total     int               `json:"total"`
}

// Options configures either client implementation.
type Options struct {
	Token string // bearer token; empty disables the Authorization header
	Actor string // sent as X-Actor-ID / x-actor-id
}
