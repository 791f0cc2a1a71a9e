package model

// Stats summarises the ledger.
type Stats struct {
	TotalMicrolots   int            `json:"total_microlots"`
	ActiveMicrolots  int            `json:"active_microlots"`
	ByStatus         map[Status]int `json:"by_status"`
	TotalEvents      int            `json:"total_events"`
	QualityPassed    int            `json:"quality_passed"`
	QualityFailed    int            `json:"quality_failed"`
	Certifications   int            `json:"certifications"`
	IntegrityFlagged int            `json:"integrity_flagged"`
}
