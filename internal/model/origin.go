package model

import "time"

// Farm, Lot and Harvest are owned by the farm management system. The ledger
// only reads them.

type Farm struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	OwnerName string   `json:"owner_name,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	AltitudeM *float64 `json:"altitude_m,omitempty"`
}

type Lot struct {
	ID      string `json:"id"`
	FarmID  string `json:"farm_id"`
	Name    string `json:"name"`
	Variety string `json:"variety,omitempty"`

	// Farm is populated by lookups that join the farm row.
	Farm *Farm `json:"farm,omitempty"`
}

type Harvest struct {
	ID          string    `json:"id"`
	LotID       string    `json:"lot_id"`
	HarvestDate time.Time `json:"harvest_date"`
	PickerCount int       `json:"picker_count,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}
