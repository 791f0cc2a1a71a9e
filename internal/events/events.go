package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// Event topic constants
const (
	TopicMicrolotCreated       = "cafetrace.microlot.created"
	TopicMicrolotDeactivated   = "cafetrace.microlot.deactivated"
	TopicEventAppended         = "cafetrace.event.appended"
	TopicQualityRecorded       = "cafetrace.quality.recorded"
	TopicCertificationAttached = "cafetrace.certification.attached"
	TopicCertificationRevoked  = "cafetrace.certification.revoked"

	// Audit channel. Operators alert on these.
	TopicIntegrityViolation = "cafetrace.integrity.violation"
	TopicIntegrityResolved  = "cafetrace.integrity.resolved"

	// TopicAll matches every ledger topic.
	TopicAll = "cafetrace.>"
)

// Event types

type MicrolotCreated struct {
	Microlot *model.Microlot          `json:"microlot"`
	Genesis  *model.TraceabilityEvent `json:"genesis"`
}

type MicrolotDeactivated struct {
	MicrolotID    string `json:"microlot_id"`
	DeactivatedBy string `json:"deactivated_by"`
}

type EventAppended struct {
	Event  *model.TraceabilityEvent `json:"event"`
	Status model.Status             `json:"status"` // microlot status after the event
}

type QualityRecorded struct {
	Record *model.QualityControlRecord `json:"record"`
}

type CertificationAttached struct {
	Certification *model.CertificationRecord `json:"certification"`
}

type CertificationRevoked struct {
	Certification *model.CertificationRecord `json:"certification"`
}

type IntegrityViolation struct {
	MicrolotID    string    `json:"microlot_id"`
	Code          string    `json:"code"`
	BrokenAtBlock int64     `json:"broken_at_block"`
	Reason        string    `json:"reason"`
	DetectedAt    time.Time `json:"detected_at"`
}

type IntegrityResolved struct {
	MicrolotID string `json:"microlot_id"`
	ResolvedBy string `json:"resolved_by"`
	Note       string `json:"note,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Flusher is implemented by publishers that buffer. The ledger flushes
// after audit events so a violation is not lost on shutdown.
type Flusher interface {
	Flush(ctx context.Context) error
}

// NoopPublisher drops every event. The server uses it when no NATS URL is
// configured; the SSE stream still sees events through its own wrapper.
type NoopPublisher struct{}

var (
	_ Publisher = (*NoopPublisher)(nil)
	_ Flusher   = (*NoopPublisher)(nil)
)

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (*NoopPublisher) Flush(context.Context) error                { return nil }
func (*NoopPublisher) Close() error                               { return nil }
