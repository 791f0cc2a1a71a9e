package archive

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
)

func exported(t *testing.T) string {
	t.Helper()
	st, _ := seededLedger(t)
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), st, &buf); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestVerify_RoundTrip(t *testing.T) {
	a, err := ReadJSONL(strings.NewReader(exported(t)))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Entries) != 2 {
		t.Fatalf("entries = %d", len(a.Entries))
	}

	rep := Verify(a)
	if !rep.OK() || rep.Checked != 2 {
		t.Fatalf("report = %+v", rep)
	}
	for _, v := range rep.Results {
		if !v.Valid {
			t.Errorf("%s: %+v", v.MicrolotID, v)
		}
	}
}

func TestVerify_TamperedDescription(t *testing.T) {
	data := exported(t)
	// The genesis description names the lot; rewrite it on every line.
	tampered := strings.Replace(data, "from lot Lote Bajo", "from lot Lote Alto", 1)
	if tampered == data {
		t.Fatal("fixture has no genesis description to tamper with")
	}

	a, err := ReadJSONL(strings.NewReader(tampered))
	if err != nil {
		t.Fatal(err)
	}
	rep := Verify(a)
	if rep.OK() || rep.Invalid != 1 {
		t.Fatalf("report = %+v", rep)
	}
	for _, v := range rep.Results {
		if !v.Valid && (v.Code != ledger.CodeHashMismatch || v.BrokenAtBlock != 1) {
			t.Errorf("verification = %+v", v)
		}
	}
}

func TestVerify_DroppedBlock(t *testing.T) {
	lines := nonEmptyLines(exported(t))
	var kept []string
	dropped := false
	for _, l := range lines {
		if !dropped && strings.Contains(l, `"block_number":2`) {
			dropped = true
			continue
		}
		kept = append(kept, l)
	}
	if !dropped {
		t.Fatal("no block 2 in fixture")
	}

	a, err := ReadJSONL(strings.NewReader(strings.Join(kept, "\n")))
	if err != nil {
		t.Fatal(err)
	}
	rep := Verify(a)
	if rep.Invalid != 1 || rep.Mismatch == "" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestReadJSONL_Errors(t *testing.T) {
	header := `{"version":"1","type":"header","microlot_count":1,"event_count":0}`
	for _, tc := range []struct {
		name, input, want string
	}{
		{"Empty", "", "empty archive"},
		{"NotHeader", `{"type":"microlot","data":{}}`, "expected header"},
		{"Version", `{"version":"9","type":"header"}`, "unsupported archive version"},
		{"Orphan", header + "\n" + `{"type":"event","data":{"microlot_id":"ml-1"}}`, "before any microlot"},
		{"Foreign", header + "\n" + `{"type":"microlot","data":{"id":"ml-1"}}` + "\n" + `{"type":"quality","data":{"microlot_id":"ml-2"}}`, "follows microlot ml-1"},
		{"UnknownType", header + "\n" + `{"type":"microlot","data":{"id":"ml-1"}}` + "\n" + `{"type":"bead","data":{}}`, "unknown record type"},
		{"BadJSON", header + "\n{not json", "line 2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadJSONL(strings.NewReader(tc.input))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}
