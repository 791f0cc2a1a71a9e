package model

import (
	"testing"
	"time"
)

func TestStatus_IsValid(t *testing.T) {
	for _, tc := range []struct {
		status Status
		want   bool
	}{
		{StatusHarvested, true},
		{StatusInProcessing, true},
		{StatusDrying, true},
		{StatusStored, true},
		{StatusReadyForExport, true},
		{StatusExported, true},
		{Status(""), false},
		{Status("harvested"), false},
		{Status("bogus"), false},
	} {
		if got := tc.status.IsValid(); got != tc.want {
			t.Errorf("Status(%q).IsValid() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestStatus_Rank(t *testing.T) {
	for i, st := range Lifecycle {
		if got := st.Rank(); got != i {
			t.Errorf("%s.Rank() = %d, want %d", st, got, i)
		}
	}
	if got := Status("bogus").Rank(); got != -1 {
		t.Errorf("bogus.Rank() = %d, want -1", got)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, st := range Lifecycle {
		want := st == StatusExported
		if got := st.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", st, got, want)
		}
	}
}

func TestEventType_IsValid(t *testing.T) {
	for _, tc := range []struct {
		typ  EventType
		want bool
	}{
		{EventHarvest, true},
		{EventInProcessing, true},
		{EventExported, true},
		{EventQualityControl, true},
		{EventCertification, true},
		{EventCertificationRevoked, true},
		{EventTransport, true},
		{EventNote, true},
		{EventRevert, true},
		{EventType(""), false},
		{EventType("SHIPPED"), false},
	} {
		if got := tc.typ.IsValid(); got != tc.want {
			t.Errorf("EventType(%q).IsValid() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestEventType_IsAnnotation(t *testing.T) {
	for _, tc := range []struct {
		typ  EventType
		want bool
	}{
		{EventQualityControl, true},
		{EventCertification, true},
		{EventCertificationRevoked, true},
		{EventTransport, true},
		{EventNote, true},
		{EventHarvest, false},
		{EventDrying, false},
		{EventRevert, false},
	} {
		if got := tc.typ.IsAnnotation(); got != tc.want {
			t.Errorf("EventType(%q).IsAnnotation() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestTestType_IsValid(t *testing.T) {
	for _, tc := range []struct {
		typ  TestType
		want bool
	}{
		{TestPhysical, true},
		{TestSensory, true},
		{TestFull, true},
		{TestType("physical"), false},
		{TestType(""), false},
	} {
		if got := tc.typ.IsValid(); got != tc.want {
			t.Errorf("TestType(%q).IsValid() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestCertificationRecord_StatusAt(t *testing.T) {
	issue := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	revoked := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name    string
		revoked *time.Time
		now     time.Time
		want    CertificationStatus
	}{
		{"BeforeIssue", nil, issue.Add(-time.Hour), CertificationExpired},
		{"AtIssue", nil, issue, CertificationActive},
		{"Within", nil, issue.AddDate(0, 3, 0), CertificationActive},
		{"AtExpiry", nil, expiry, CertificationActive},
		{"AfterExpiry", nil, expiry.Add(time.Second), CertificationExpired},
		{"RevokedWithinWindow", &revoked, issue.AddDate(0, 3, 0), CertificationRevoked},
		{"RevokedAfterExpiry", &revoked, expiry.AddDate(1, 0, 0), CertificationRevoked},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := &CertificationRecord{IssueDate: issue, ExpiryDate: expiry, RevokedAt: tc.revoked}
			if got := c.StatusAt(tc.now); got != tc.want {
				t.Errorf("StatusAt = %s, want %s", got, tc.want)
			}
		})
	}
}
