package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

func f64(v float64) *float64 { return &v }

func sampleMetadata() model.EventMetadata {
	return model.EventMetadata{
		Location: &model.Location{Name: "Finca La Esperanza", Latitude: f64(4.5712), Longitude: f64(-75.6789)},
		Process:  &model.ProcessDetails{Method: "washed", DurationHours: f64(36), MoisturePct: f64(11.2)},
		Tags:     []string{"organic", "lot-a"},
		Attributes: map[string]string{
			"zeta":  "last",
			"alpha": "first",
			"mid":   "middle",
		},
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	date := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	prev := "abc123"

	h1, err := ComputeHash("ml-1", model.EventDrying, date, "Moved to raised beds", sampleMetadata(), &prev)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	for i := 0; i < 10; i++ {
		h2, err := ComputeHash("ml-1", model.EventDrying, date, "Moved to raised beds", sampleMetadata(), &prev)
		if err != nil {
			t.Fatalf("ComputeHash: %v", err)
		}
		if h1 != h2 {
			t.Fatalf("hash changed between calls: %s != %s", h1, h2)
		}
	}
	if len(h1) != 64 {
		t.Errorf("len(hash) = %d, want 64 hex chars", len(h1))
	}
}

func TestComputeHash_FieldSensitivity(t *testing.T) {
	date := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	prev := "abc123"
	base, err := ComputeHash("ml-1", model.EventDrying, date, "desc", sampleMetadata(), &prev)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}

	otherPrev := "abc124"
	changedMeta := sampleMetadata()
	changedMeta.Process.MoisturePct = f64(11.3)
	changedAttr := sampleMetadata()
	changedAttr.Attributes["alpha"] = "changed"

	tests := []struct {
		name string
		hash func() (string, error)
	}{
		{"microlot", func() (string, error) {
			return ComputeHash("ml-2", model.EventDrying, date, "desc", sampleMetadata(), &prev)
		}},
		{"event type", func() (string, error) {
			return ComputeHash("ml-1", model.EventStored, date, "desc", sampleMetadata(), &prev)
		}},
		{"date", func() (string, error) {
			return ComputeHash("ml-1", model.EventDrying, date.Add(time.Microsecond), "desc", sampleMetadata(), &prev)
		}},
		{"description", func() (string, error) {
			return ComputeHash("ml-1", model.EventDrying, date, "desc.", sampleMetadata(), &prev)
		}},
		{"metadata value", func() (string, error) {
			return ComputeHash("ml-1", model.EventDrying, date, "desc", changedMeta, &prev)
		}},
		{"attribute", func() (string, error) {
			return ComputeHash("ml-1", model.EventDrying, date, "desc", changedAttr, &prev)
		}},
		{"previous hash", func() (string, error) {
			return ComputeHash("ml-1", model.EventDrying, date, "desc", sampleMetadata(), &otherPrev)
		}},
		{"genesis", func() (string, error) {
			return ComputeHash("ml-1", model.EventDrying, date, "desc", sampleMetadata(), nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.hash()
			if err != nil {
				t.Fatalf("ComputeHash: %v", err)
			}
			if got == base {
				t.Errorf("changing %s did not change the hash", tt.name)
			}
		})
	}
}

func TestComputeHash_DateNormalised(t *testing.T) {
	utc := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC)
	bogota := utc.In(time.FixedZone("COT", -5*3600))

	h1, _ := ComputeHash("ml-1", model.EventNote, utc, "", model.EventMetadata{}, nil)
	h2, _ := ComputeHash("ml-1", model.EventNote, bogota, "", model.EventMetadata{}, nil)
	h3, _ := ComputeHash("ml-1", model.EventNote, utc.Truncate(time.Microsecond), "", model.EventMetadata{}, nil)
	if h1 != h2 {
		t.Error("time zone changed the hash")
	}
	if h1 != h3 {
		t.Error("sub-microsecond precision changed the hash")
	}
}

// The store keeps metadata as JSON; a hash must survive the round trip.
func TestHashEvent_SurvivesJSONRoundTrip(t *testing.T) {
	prev := "0f0f"
	e := &model.TraceabilityEvent{
		ID:                 "ev-1",
		MicrolotID:         "ml-1",
		BlockNumber:        2,
		EventType:          model.EventQualityControl,
		EventDate:          CanonicalDate(time.Now()),
		Description:        "FULL quality test passed",
		Metadata:           sampleMetadata(),
		ResponsibleActorID: "lab-7",
		PreviousHash:       &prev,
	}
	e.Metadata.Quality = &model.QualitySummary{
		RecordID: "qc-1",
		TestType: model.TestFull,
		Passed:   true,
		Measurements: model.Measurements{
			MoisturePct: f64(10.5),
			SCAScore:    f64(86.25),
		},
	}
	h, err := HashEvent(e)
	if err != nil {
		t.Fatalf("HashEvent: %v", err)
	}
	e.CurrentHash = h

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back model.TraceabilityEvent
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := HashEvent(&back)
	if err != nil {
		t.Fatalf("HashEvent: %v", err)
	}
	if got != back.CurrentHash {
		t.Errorf("hash after round trip = %s, want %s", got, back.CurrentHash)
	}
}

func TestHashEvent_EmptyAndNilMetadataAgree(t *testing.T) {
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h1, _ := ComputeHash("ml-1", model.EventNote, date, "", model.EventMetadata{}, nil)
	h2, _ := ComputeHash("ml-1", model.EventNote, date, "", model.EventMetadata{Tags: []string{}, Attributes: map[string]string{}}, nil)
	if h1 != h2 {
		t.Error("empty tags/attributes hashed differently from absent ones")
	}
}
