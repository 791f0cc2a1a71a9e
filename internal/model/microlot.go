package model

import "time"

// Status is the lifecycle position of a microlot.
type Status string

const (
	StatusHarvested      Status = "HARVESTED"
	StatusInProcessing   Status = "IN_PROCESSING"
	StatusDrying         Status = "DRYING"
	StatusStored         Status = "STORED"
	StatusReadyForExport Status = "READY_FOR_EXPORT"
	StatusExported       Status = "EXPORTED"
)

// Lifecycle lists the statuses in the order a microlot moves through them.
var Lifecycle = []Status{
	StatusHarvested,
	StatusInProcessing,
	StatusDrying,
	StatusStored,
	StatusReadyForExport,
	StatusExported,
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	return s.Rank() >= 0
}

// Rank returns the zero-based position of s in the lifecycle, or -1 if s is unknown.
func (s Status) Rank() int {
	for i, st := range Lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further lifecycle transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusExported
}

// IntegrityFlag marks a microlot whose chain failed verification.
// While set, the ledger refuses new appends for the microlot.
type IntegrityFlag struct {
	BrokenAtBlock int64     `json:"broken_at_block"`
	Reason        string    `json:"reason"`
	FlaggedAt     time.Time `json:"flagged_at"`
}

// Microlot is a discrete, quality-graded batch of coffee with its own chain.
type Microlot struct {
	ID            string         `json:"id"`
	Code          string         `json:"code"`
	LotRef        string         `json:"lot_ref"`
	HarvestRef    string         `json:"harvest_ref"`
	QuantityKg    float64        `json:"quantity_kg"`
	QualityGrade  string         `json:"quality_grade"`
	Status        Status         `json:"status"`
	IsActive      bool           `json:"is_active"`
	TailBlock     int64          `json:"tail_block"`
	IntegrityFlag *IntegrityFlag `json:"integrity_flag,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CreatedBy     string         `json:"created_by,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
