package model

import "time"

// EventType classifies a traceability event.
type EventType string

// Lifecycle event types. Each one moves the microlot to the status of the same name.
const (
	EventHarvest        EventType = "HARVEST"
	EventInProcessing   EventType = "IN_PROCESSING"
	EventDrying         EventType = "DRYING"
	EventStored         EventType = "STORED"
	EventReadyForExport EventType = "READY_FOR_EXPORT"
	EventExported       EventType = "EXPORTED"
)

// Annotation event types. They occupy a block but leave the status alone.
const (
	EventQualityControl       EventType = "QUALITY_CONTROL"
	EventCertification        EventType = "CERTIFICATION"
	EventCertificationRevoked EventType = "CERTIFICATION_REVOKED"
	EventTransport            EventType = "TRANSPORT"
	EventNote                 EventType = "NOTE"
)

// EventRevert is the correction event. It moves the status backwards and
// requires a privileged actor.
const EventRevert EventType = "REVERT"

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks whether the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventHarvest, EventInProcessing, EventDrying, EventStored, EventReadyForExport, EventExported,
		EventQualityControl, EventCertification, EventCertificationRevoked, EventTransport, EventNote,
		EventRevert:
		return true
	}
	return false
}

// IsAnnotation reports whether the event type records information without
// changing the lifecycle status.
func (t EventType) IsAnnotation() bool {
	switch t {
	case EventQualityControl, EventCertification, EventCertificationRevoked, EventTransport, EventNote:
		return true
	}
	return false
}

// TraceabilityEvent is one block of a microlot's chain. Immutable once committed.
type TraceabilityEvent struct {
	ID                 string        `json:"id"`
	MicrolotID         string        `json:"microlot_id"`
	BlockNumber        int64         `json:"block_number"`
	EventType          EventType     `json:"event_type"`
	EventDate          time.Time     `json:"event_date"`
	Description        string        `json:"description"`
	Metadata           EventMetadata `json:"metadata"`
	ResponsibleActorID string        `json:"responsible_actor_id"`
	PreviousHash       *string       `json:"previous_hash"`
	CurrentHash        string        `json:"current_hash"`
}

// EventMetadata is the structured payload of an event. Only Location is
// ever shown to public viewers.
type EventMetadata struct {
	Location      *Location         `json:"location,omitempty"`
	Process       *ProcessDetails   `json:"process,omitempty"`
	Quality       *QualitySummary   `json:"quality,omitempty"`
	Certification *CertificationRef `json:"certification,omitempty"`
	Revert        *RevertDetails    `json:"revert,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// Location is where an event took place.
type Location struct {
	Name      string   `json:"name,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	AltitudeM *float64 `json:"altitude_m,omitempty"`
}

// ProcessDetails describes a processing or drying step.
type ProcessDetails struct {
	Method        string   `json:"method,omitempty"` // washed, natural, honey, ...
	Facility      string   `json:"facility,omitempty"`
	DurationHours *float64 `json:"duration_hours,omitempty"`
	TemperatureC  *float64 `json:"temperature_c,omitempty"`
	MoisturePct   *float64 `json:"moisture_pct,omitempty"`
}

// QualitySummary is the ledger copy of a quality-control result.
type QualitySummary struct {
	RecordID     string       `json:"record_id"`
	TestType     TestType     `json:"test_type"`
	Passed       bool         `json:"passed"`
	Measurements Measurements `json:"measurements"`
}

// CertificationRef points at a certification record from the chain.
type CertificationRef struct {
	RecordID          string `json:"record_id"`
	Type              string `json:"type"`
	IssuingBody       string `json:"issuing_body,omitempty"`
	CertificateNumber string `json:"certificate_number,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// RevertDetails records a correction of the lifecycle status.
type RevertDetails struct {
	From   Status `json:"from"`
	To     Status `json:"to"`
	Reason string `json:"reason,omitempty"`
}
