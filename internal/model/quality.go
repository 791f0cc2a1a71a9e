package model

import "time"

// TestType selects which quality thresholds apply.
type TestType string

const (
	TestPhysical TestType = "PHYSICAL"
	TestSensory  TestType = "SENSORY"
	TestFull     TestType = "FULL"
)

// String returns the string representation of the test type.
func (t TestType) String() string {
	return string(t)
}

// IsValid checks whether the test type is a known value.
func (t TestType) IsValid() bool {
	switch t {
	case TestPhysical, TestSensory, TestFull:
		return true
	}
	return false
}

// Measurements are lab readings. Nil means the value was not measured.
type Measurements struct {
	MoisturePct *float64 `json:"moisture,omitempty"`
	Defects     *int     `json:"defects,omitempty"`
	Density     *float64 `json:"density,omitempty"`
	Aroma       *float64 `json:"aroma,omitempty"`
	Acidity     *float64 `json:"acidity,omitempty"`
	Body        *float64 `json:"body,omitempty"`
	Flavor      *float64 `json:"flavor,omitempty"`
	SCAScore    *float64 `json:"sca_score,omitempty"`
}

// QualityControlRecord is an immutable lab result for a microlot.
type QualityControlRecord struct {
	ID           string       `json:"id"`
	MicrolotID   string       `json:"microlot_id"`
	TestType     TestType     `json:"test_type"`
	Measurements Measurements `json:"measurements"`
	Passed       bool         `json:"passed"`
	TesterID     string       `json:"tester_id"`
	TestDate     time.Time    `json:"test_date"`
	Notes        string       `json:"notes,omitempty"`
	EventBlock   int64        `json:"event_block"`
	CreatedAt    time.Time    `json:"created_at"`
}
