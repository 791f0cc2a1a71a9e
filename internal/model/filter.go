package model

// MicrolotFilter holds criteria for querying microlots.
type MicrolotFilter struct {
	Status          []Status `json:"status,omitempty"`
	QualityGrade    []string `json:"quality_grade,omitempty"`
	LotRef          string   `json:"lot_ref,omitempty"`
	HarvestRef      string   `json:"harvest_ref,omitempty"`
	IncludeInactive bool     `json:"include_inactive,omitempty"`
	Flagged         *bool    `json:"flagged,omitempty"` // integrity flag set / not set
	Search          string   `json:"search,omitempty"`  // substring match on code
	Sort            string   `json:"sort,omitempty"`    // e.g. "-created_at", "quantity_kg"; prefix "-" = descending
	Limit           int      `json:"limit,omitempty"`
	Offset          int      `json:"offset,omitempty"`
}
