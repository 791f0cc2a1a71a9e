package model

import "time"

// CertificationStatus is derived from the validity window and revocation.
type CertificationStatus string

const (
	CertificationActive  CertificationStatus = "ACTIVE"
	CertificationExpired CertificationStatus = "EXPIRED"
	CertificationRevoked CertificationStatus = "REVOKED"
)

// CertificationRecord is a third-party certificate attached to a microlot.
type CertificationRecord struct {
	ID                string     `json:"id"`
	MicrolotID        string     `json:"microlot_id"`
	Type              string     `json:"type"`
	IssuingBody       string     `json:"issuing_body"`
	CertificateNumber string     `json:"certificate_number"`
	IssueDate         time.Time  `json:"issue_date"`
	ExpiryDate        time.Time  `json:"expiry_date"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
	RevokedBy         string     `json:"revoked_by,omitempty"`
	RevocationReason  string     `json:"revocation_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CreatedBy         string     `json:"created_by,omitempty"`

	// Status is filled in at read time from StatusAt.
	Status CertificationStatus `json:"status"`
}

// StatusAt derives the certification status at the given instant.
func (c *CertificationRecord) StatusAt(now time.Time) CertificationStatus {
	if c.RevokedAt != nil {
		return CertificationRevoked
	}
	if now.Before(c.IssueDate) || now.After(c.ExpiryDate) {
		return CertificationExpired
	}
	return CertificationActive
}
