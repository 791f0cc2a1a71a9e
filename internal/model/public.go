package model

import "time"

// PublicView is the redacted provenance record served to anonymous viewers.
// It never carries actor ids or internal metadata.
type PublicView struct {
	Code            string                `json:"code"`
	QuantityKg      float64               `json:"quantity_kg"`
	QualityGrade    string                `json:"quality_grade"`
	Status          Status                `json:"status"`
	Farm            PublicFarm            `json:"farm"`
	Harvest         PublicHarvest         `json:"harvest"`
	ProcessingSteps []PublicEvent         `json:"processing_steps"`
	LatestQuality   *PublicQuality        `json:"latest_quality,omitempty"`
	Certifications  []PublicCertification `json:"certifications"`
	Timeline        []PublicEvent         `json:"timeline"`
	Integrity       PublicIntegrity       `json:"integrity"`
}

type PublicFarm struct {
	Name      string   `json:"name"`
	OwnerName string   `json:"owner_name,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	AltitudeM *float64 `json:"altitude_m,omitempty"`
}

type PublicHarvest struct {
	Date    time.Time `json:"date"`
	Variety string    `json:"variety,omitempty"`
}

// PublicEvent is one timeline entry: type, date, description and location only.
type PublicEvent struct {
	EventType   EventType `json:"event_type"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Location    *Location `json:"location,omitempty"`
}

type PublicQuality struct {
	TestType TestType  `json:"test_type"`
	TestDate time.Time `json:"test_date"`
	SCAScore *float64  `json:"sca_score,omitempty"`
	Passed   bool      `json:"passed"`
}

type PublicCertification struct {
	Type              string    `json:"type"`
	IssuingBody       string    `json:"issuing_body"`
	CertificateNumber string    `json:"certificate_number"`
	IssueDate         time.Time `json:"issue_date"`
	ExpiryDate        time.Time `json:"expiry_date"`
}

type PublicIntegrity struct {
	Verified bool   `json:"verified"`
	Blocks   int    `json:"blocks"`
	HeadHash string `json:"head_hash,omitempty"`
}
