package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// hashInput is the canonical form of an event. Field order is fixed by the
// struct and map keys are sorted by encoding/json, so the encoding of a
// given event never varies.
type hashInput struct {
	MicrolotID   string              `json:"microlot_id"`
	EventType    model.EventType     `json:"event_type"`
	EventDate    string              `json:"event_date"`
	Description  string              `json:"description"`
	Metadata     model.EventMetadata `json:"metadata"`
	PreviousHash string              `json:"previous_hash"`
}

// CanonicalDate normalises an event date to the precision the store keeps.
func CanonicalDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHash returns the hex SHA-256 of the canonical encoding of an event's
// content and its predecessor's hash. previousHash is nil for the genesis block.
func ComputeHash(microlotID string, eventType model.EventType, eventDate time.Time, description string, metadata model.EventMetadata, previousHash *string) (string, error) {
	in := hashInput{
		MicrolotID:  microlotID,
		EventType:   eventType,
		EventDate:   CanonicalDate(eventDate).Format(time.RFC3339Nano),
		Description: description,
		Metadata:    metadata,
	}
	if previousHash != nil {
		in.PreviousHash = *previousHash
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("canonical encoding: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashEvent recomputes the hash of a stored event from its fields.
func HashEvent(e *model.TraceabilityEvent) (string, error) {
	return ComputeHash(e.MicrolotID, e.EventType, e.EventDate, e.Description, e.Metadata, e.PreviousHash)
}
