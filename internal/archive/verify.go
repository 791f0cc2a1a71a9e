package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// maxLineBytes bounds one JSONL record; event metadata is small.
const maxLineBytes = 4 << 20

// Entry is one microlot and everything exported with it.
type Entry struct {
	Microlot       *model.Microlot
	Events         []*model.TraceabilityEvent
	Quality        []*model.QualityControlRecord
	Certifications []*model.CertificationRecord
}

// Archive is a parsed JSONL export.
type Archive struct {
	Header  Header
	Entries []*Entry
}

// ReadJSONL parses an export written by ExportJSONL. Records that belong to
// no microlot, or to a different microlot than the one they follow, are
// errors.
func ReadJSONL(r io.Reader) (*Archive, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	a := &Archive{}
	var cur *Entry
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		if line == 1 {
			if err := json.Unmarshal(raw, &a.Header); err != nil {
				return nil, fmt.Errorf("line 1: decode header: %w", err)
			}
			if a.Header.Type != TypeHeader {
				return nil, fmt.Errorf("line 1: expected header, got %q", a.Header.Type)
			}
			if a.Header.Version != FormatVersion {
				return nil, fmt.Errorf("unsupported archive version %q", a.Header.Version)
			}
			continue
		}

		var rec struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if rec.Type == TypeMicrolot {
			var m model.Microlot
			if err := json.Unmarshal(rec.Data, &m); err != nil {
				return nil, fmt.Errorf("line %d: decode microlot: %w", line, err)
			}
			cur = &Entry{Microlot: &m}
			a.Entries = append(a.Entries, cur)
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("line %d: %s record before any microlot", line, rec.Type)
		}

		var owner string
		switch rec.Type {
		case TypeEvent:
			var e model.TraceabilityEvent
			if err := json.Unmarshal(rec.Data, &e); err != nil {
				return nil, fmt.Errorf("line %d: decode event: %w", line, err)
			}
			owner = e.MicrolotID
			cur.Events = append(cur.Events, &e)
		case TypeQuality:
			var q model.QualityControlRecord
			if err := json.Unmarshal(rec.Data, &q); err != nil {
				return nil, fmt.Errorf("line %d: decode quality record: %w", line, err)
			}
			owner = q.MicrolotID
			cur.Quality = append(cur.Quality, &q)
		case TypeCertification:
			var c model.CertificationRecord
			if err := json.Unmarshal(rec.Data, &c); err != nil {
				return nil, fmt.Errorf("line %d: decode certification: %w", line, err)
			}
			owner = c.MicrolotID
			cur.Certifications = append(cur.Certifications, &c)
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", line, rec.Type)
		}
		if owner != cur.Microlot.ID {
			return nil, fmt.Errorf("line %d: %s record for %s follows microlot %s", line, rec.Type, owner, cur.Microlot.ID)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	if line == 0 {
		return nil, fmt.Errorf("empty archive")
	}
	return a, nil
}

// Report is the result of verifying an archive.
type Report struct {
	Checked int                   `json:"checked"`
	Invalid int                   `json:"invalid"`
	Results []ledger.Verification `json:"results"`
	// Mismatch describes a disagreement between the header counts and the
	// records, if any.
	Mismatch string `json:"mismatch,omitempty"`
}

// OK reports whether every chain verified and the header counts agree.
func (r *Report) OK() bool {
	return r.Invalid == 0 && r.Mismatch == ""
}

// Verify recomputes every chain in the archive the same way the ledger does,
// including the microlot tail pointer check.
func Verify(a *Archive) *Report {
	rep := &Report{Results: make([]ledger.Verification, 0, len(a.Entries))}
	events := 0
	for _, e := range a.Entries {
		v := ledger.VerifyMicrolot(e.Microlot, e.Events)
		rep.Results = append(rep.Results, v)
		rep.Checked++
		if !v.Valid {
			rep.Invalid++
		}
		events += len(e.Events)
	}
	if len(a.Entries) != a.Header.MicrolotCount || events != a.Header.EventCount {
		rep.Mismatch = fmt.Sprintf("header declares %d microlots and %d events, archive has %d and %d",
			a.Header.MicrolotCount, a.Header.EventCount, len(a.Entries), events)
	}
	return rep
}
