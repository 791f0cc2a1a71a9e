package events

import (
	"encoding/json"
	"strings"
)

// Message is one event received from the bus.
type Message struct {
	Topic string
	Data  []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers events on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// MatchTopic matches a dot-separated topic against a pattern with "*" as a
// single-segment wildcard and ">" as a trailing multi-segment wildcard, the
// way NATS subjects match.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")
	for i, pp := range patParts {
		if pp == ">" {
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}
	return len(patParts) == len(topParts)
}

type payloadProbe struct {
	MicrolotID string `json:"microlot_id"`
	Microlot   *struct {
		ID string `json:"id"`
	} `json:"microlot"`
	Event         *idHolder `json:"event"`
	Record        *idHolder `json:"record"`
	Certification *idHolder `json:"certification"`
}

type idHolder struct {
	MicrolotID string `json:"microlot_id"`
}

// MicrolotID returns the microlot a ledger event payload refers to, or ""
// when it names none.
func MicrolotID(data []byte) string {
	var p payloadProbe
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	switch {
	case p.MicrolotID != "":
		return p.MicrolotID
	case p.Microlot != nil:
		return p.Microlot.ID
	case p.Event != nil:
		return p.Event.MicrolotID
	case p.Record != nil:
		return p.Record.MicrolotID
	case p.Certification != nil:
		return p.Certification.MicrolotID
	}
	return ""
}
