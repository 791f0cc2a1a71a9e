// Package archive exports the ledger as JSONL to off-site destinations and
// verifies exported files without a database.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// FormatVersion is written in every archive header.
const FormatVersion = "1"

const exportPageSize = 500

// Record types, in the order ExportJSONL writes them for each microlot.
const (
	TypeHeader        = "header"
	TypeMicrolot      = "microlot"
	TypeEvent         = "event"
	TypeQuality       = "quality"
	TypeCertification = "certification"
)

// Header is the first JSONL record of an archive.
type Header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	MicrolotCount int       `json:"microlot_count"`
	EventCount    int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every microlot, active or not, to w. Microlots are
// sorted by id; each is followed by its chain in block order, then its
// quality records and certifications.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	var microlots []*model.Microlot
	for offset := 0; ; offset += exportPageSize {
		page, total, err := s.ListMicrolots(ctx, model.MicrolotFilter{
			IncludeInactive: true,
			Sort:            "created_at",
			Limit:           exportPageSize,
			Offset:          offset,
		})
		if err != nil {
			return fmt.Errorf("list microlots: %w", err)
		}
		microlots = append(microlots, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}
	sort.Slice(microlots, func(i, j int) bool {
		return microlots[i].ID < microlots[j].ID
	})

	type entry struct {
		microlot *model.Microlot
		chain    []*model.TraceabilityEvent
		quality  []*model.QualityControlRecord
		certs    []*model.CertificationRecord
	}
	entries := make([]entry, 0, len(microlots))
	events := 0
	for _, m := range microlots {
		chain, err := s.ListEvents(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("list events for %s: %w", m.ID, err)
		}
		quality, err := s.ListQualityRecords(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("list quality records for %s: %w", m.ID, err)
		}
		certs, err := s.ListCertifications(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("list certifications for %s: %w", m.ID, err)
		}
		events += len(chain)
		entries = append(entries, entry{m, chain, quality, certs})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(Header{
		Version:       FormatVersion,
		Type:          TypeHeader,
		Timestamp:     time.Now().UTC(),
		MicrolotCount: len(entries),
		EventCount:    events,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range entries {
		if err := enc.Encode(record{Type: TypeMicrolot, Data: e.microlot}); err != nil {
			return fmt.Errorf("encode microlot %s: %w", e.microlot.ID, err)
		}
		for _, ev := range e.chain {
			if err := enc.Encode(record{Type: TypeEvent, Data: ev}); err != nil {
				return fmt.Errorf("encode block %d of %s: %w", ev.BlockNumber, e.microlot.ID, err)
			}
		}
		for _, q := range e.quality {
			if err := enc.Encode(record{Type: TypeQuality, Data: q}); err != nil {
				return fmt.Errorf("encode quality record %s: %w", q.ID, err)
			}
		}
		for _, c := range e.certs {
			if err := enc.Encode(record{Type: TypeCertification, Data: c}); err != nil {
				return fmt.Errorf("encode certification %s: %w", c.ID, err)
			}
		}
	}

	return nil
}
