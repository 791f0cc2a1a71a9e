package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/presence"
	"github.com/alfredjeanlab/cafetrace/internal/ui"
)

const timeFormat = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func printMicrolot(w io.Writer, m *model.Microlot) {
	fmt.Fprintf(w, "ID:          %s\n", m.ID)
	fmt.Fprintf(w, "Code:        %s\n", m.Code)
	fmt.Fprintf(w, "Status:      %s\n", m.Status)
	fmt.Fprintf(w, "Lot:         %s\n", m.LotRef)
	fmt.Fprintf(w, "Harvest:     %s\n", m.HarvestRef)
	fmt.Fprintf(w, "Quantity:    %.2f kg\n", m.QuantityKg)
	fmt.Fprintf(w, "Grade:       %s\n", m.QualityGrade)
	fmt.Fprintf(w, "Blocks:      %d\n", m.TailBlock)
	if !m.IsActive {
		fmt.Fprintf(w, "Active:      %s\n", ui.RenderWarn("no"))
	}
	if f := m.IntegrityFlag; f != nil {
		fmt.Fprintf(w, "Integrity:   %s at block %d: %s\n", ui.RenderFail("BROKEN"), f.BrokenAtBlock, f.Reason)
	}
	if m.CreatedBy != "" {
		fmt.Fprintf(w, "Created By:  %s\n", m.CreatedBy)
	}
	if !m.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created At:  %s\n", m.CreatedAt.Format(timeFormat))
	}
	if !m.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated At:  %s\n", m.UpdatedAt.Format(timeFormat))
	}
}

func printMicrolotList(w io.Writer, microlots []*model.Microlot, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tSTATUS\tGRADE\tKG\tBLOCKS\tLOT")
	for _, m := range microlots {
		status := string(m.Status)
		if m.IntegrityFlag != nil {
			status += " !"
		}
		if !m.IsActive {
			status += " (inactive)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%d\t%s\n",
			m.ID, m.Code, status, m.QualityGrade, m.QuantityKg, m.TailBlock, m.LotRef)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d microlots (%d total)\n", len(microlots), total)
}

func printChain(w io.Writer, chain []*model.TraceabilityEvent) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tTYPE\tDATE\tACTOR\tHASH\tPREV\tDESCRIPTION")
	for _, e := range chain {
		prev := "-"
		if e.PreviousHash != nil {
			prev = shortHash(*e.PreviousHash)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.BlockNumber, e.EventType, e.EventDate.Format("2006-01-02"), e.ResponsibleActorID,
			shortHash(e.CurrentHash), prev, truncate(e.Description, 50))
	}
	tw.Flush()
}

func printVerification(w io.Writer, v *ledger.Verification) {
	fmt.Fprintf(w, "Microlot:    %s\n", v.MicrolotID)
	fmt.Fprintf(w, "Chain:       %s\n", ui.RenderCheck(v.Valid, "VALID", "BROKEN"))
	fmt.Fprintf(w, "Blocks:      %d\n", v.Blocks)
	if v.HeadHash != "" {
		fmt.Fprintf(w, "Head:        %s\n", v.HeadHash)
	}
	if !v.Valid {
		fmt.Fprintf(w, "Broken At:   block %d (%s)\n", v.BrokenAtBlock, v.Code)
		fmt.Fprintf(w, "Reason:      %s\n", v.Reason)
	}
}

// measurementSummary renders the measured values in a fixed order.
func measurementSummary(m model.Measurements) string {
	var parts []string
	add := func(name string, v *float64, format string) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s="+format, name, *v))
		}
	}
	add("moisture", m.MoisturePct, "%.1f%%")
	if m.Defects != nil {
		parts = append(parts, fmt.Sprintf("defects=%d", *m.Defects))
	}
	add("density", m.Density, "%.0f")
	add("aroma", m.Aroma, "%.2f")
	add("acidity", m.Acidity, "%.2f")
	add("body", m.Body, "%.2f")
	add("flavor", m.Flavor, "%.2f")
	add("sca", m.SCAScore, "%.2f")
	return strings.Join(parts, " ")
}

func printQualityRecords(w io.Writer, records []*model.QualityControlRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no quality records")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tDATE\tRESULT\tBLOCK\tTESTER\tMEASUREMENTS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.TestType, r.TestDate.Format("2006-01-02"), ui.RenderCheck(r.Passed, "PASS", "FAIL"),
			r.EventBlock, r.TesterID, measurementSummary(r.Measurements))
	}
	tw.Flush()
}

func renderCertStatus(s model.CertificationStatus) string {
	switch s {
	case model.CertificationActive:
		return ui.RenderOK(string(s))
	case model.CertificationRevoked:
		return ui.RenderFail(string(s))
	}
	return ui.RenderWarn(string(s))
}

func printCertifications(w io.Writer, certs []*model.CertificationRecord) {
	if len(certs) == 0 {
		fmt.Fprintln(w, "no certifications")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tISSUER\tNUMBER\tVALID\tSTATUS")
	for _, c := range certs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s..%s\t%s\n",
			c.ID, c.Type, c.IssuingBody, c.CertificateNumber,
			c.IssueDate.Format("2006-01-02"), c.ExpiryDate.Format("2006-01-02"), renderCertStatus(c.Status))
	}
	tw.Flush()
}

func printCertification(w io.Writer, c *model.CertificationRecord) {
	fmt.Fprintf(w, "ID:          %s\n", c.ID)
	fmt.Fprintf(w, "Microlot:    %s\n", c.MicrolotID)
	fmt.Fprintf(w, "Type:        %s\n", c.Type)
	fmt.Fprintf(w, "Issuer:      %s\n", c.IssuingBody)
	fmt.Fprintf(w, "Number:      %s\n", c.CertificateNumber)
	fmt.Fprintf(w, "Valid:       %s to %s\n", c.IssueDate.Format("2006-01-02"), c.ExpiryDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Status:      %s\n", renderCertStatus(c.Status))
	if c.RevokedAt != nil {
		fmt.Fprintf(w, "Revoked:     %s by %s: %s\n", c.RevokedAt.Format(timeFormat), c.RevokedBy, c.RevocationReason)
	}
}

func printQualityRecord(w io.Writer, r *model.QualityControlRecord) {
	fmt.Fprintf(w, "ID:          %s\n", r.ID)
	fmt.Fprintf(w, "Microlot:    %s\n", r.MicrolotID)
	fmt.Fprintf(w, "Test:        %s\n", r.TestType)
	fmt.Fprintf(w, "Result:      %s\n", ui.RenderCheck(r.Passed, "PASS", "FAIL"))
	fmt.Fprintf(w, "Measured:    %s\n", measurementSummary(r.Measurements))
	fmt.Fprintf(w, "Block:       %d\n", r.EventBlock)
}

func printPublicView(w io.Writer, v *model.PublicView) {
	fmt.Fprintf(w, "%s  %s\n", ui.RenderAccent(v.Code), v.Status)
	fmt.Fprintf(w, "  %.1f kg, grade %s\n", v.QuantityKg, v.QualityGrade)
	farm := v.Farm.Name
	if loc := strings.Join(nonEmpty(v.Farm.Region, v.Farm.Country), ", "); loc != "" {
		farm += " (" + loc + ")"
	}
	fmt.Fprintf(w, "  Farm:      %s\n", farm)
	if v.Farm.AltitudeM != nil {
		fmt.Fprintf(w, "  Altitude:  %.0f m\n", *v.Farm.AltitudeM)
	}
	harvest := v.Harvest.Date.Format("2006-01-02")
	if v.Harvest.Variety != "" {
		harvest += ", " + v.Harvest.Variety
	}
	fmt.Fprintf(w, "  Harvest:   %s\n", harvest)
	if q := v.LatestQuality; q != nil {
		line := fmt.Sprintf("%s %s on %s", q.TestType, ui.RenderCheck(q.Passed, "passed", "failed"), q.TestDate.Format("2006-01-02"))
		if q.SCAScore != nil {
			line += fmt.Sprintf(", SCA %.2f", *q.SCAScore)
		}
		fmt.Fprintf(w, "  Quality:   %s\n", line)
	}
	for _, c := range v.Certifications {
		fmt.Fprintf(w, "  Certified: %s by %s until %s\n", c.Type, c.IssuingBody, c.ExpiryDate.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "  Integrity: %s (%d blocks)\n", ui.RenderCheck(v.Integrity.Verified, "verified", "unverified"), v.Integrity.Blocks)

	fmt.Fprintln(w)
	for _, e := range v.Timeline {
		line := fmt.Sprintf("  %s  %-20s %s", e.Date.Format("2006-01-02"), e.EventType, e.Description)
		if e.Location != nil && e.Location.Name != "" {
			line += ui.RenderMuted(" @ " + e.Location.Name)
		}
		fmt.Fprintln(w, line)
	}
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printStats(w io.Writer, s *model.Stats) {
	fmt.Fprintf(w, "Microlots:       %d (%d active)\n", s.TotalMicrolots, s.ActiveMicrolots)
	for _, st := range model.Lifecycle {
		if n := s.ByStatus[st]; n > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", st, n)
		}
	}
	fmt.Fprintf(w, "Events:          %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Quality:         %d passed, %d failed\n", s.QualityPassed, s.QualityFailed)
	fmt.Fprintf(w, "Certifications:  %d\n", s.Certifications)
	flagged := fmt.Sprintf("%d", s.IntegrityFlagged)
	if s.IntegrityFlagged > 0 {
		flagged = ui.RenderFail(flagged)
	}
	fmt.Fprintf(w, "Flagged chains:  %s\n", flagged)
}

func printActors(w io.Writer, entries []presence.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no recent activity")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTOR\tLAST SEEN\tACTIONS\tLAST ACTION\tVIA")
	for _, e := range entries {
		seen := (time.Duration(e.IdleSecs) * time.Second).Round(time.Second).String() + " ago"
		if e.Idle {
			seen = ui.RenderMuted(seen + " (idle)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.Actor, seen, e.ActionCount, e.LastAction, e.Transport)
	}
	tw.Flush()
}
