package presence

import (
	"testing"
	"time"
)

func TestRecord_BasicTracking(t *testing.T) {
	tr := New()

	tr.Record(Activity{Actor: "operator-1", Action: "POST /v1/microlots", Transport: "http"})

	roster := tr.Roster(0)
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}

	e := roster[0]
	if e.Actor != "operator-1" {
		t.Errorf("expected actor operator-1, got %s", e.Actor)
	}
	if e.LastAction != "POST /v1/microlots" {
		t.Errorf("expected last_action POST /v1/microlots, got %s", e.LastAction)
	}
	if e.Transport != "http" {
		t.Errorf("expected transport http, got %s", e.Transport)
	}
	if e.ActionCount != 1 {
		t.Errorf("expected action_count 1, got %d", e.ActionCount)
	}
}

func TestRecord_UpdatesExistingActor(t *testing.T) {
	tr := New()

	tr.Record(Activity{Actor: "lab-7", Action: "RecordQualityControl", Transport: "grpc"})
	tr.Record(Activity{Actor: "lab-7", Action: "RecordQualityControl"})
	tr.Record(Activity{Actor: "lab-7", Action: "POST /v1/certifications", Transport: "http"})

	roster := tr.Roster(0)
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}
	e := roster[0]
	if e.ActionCount != 3 {
		t.Errorf("expected 3 actions, got %d", e.ActionCount)
	}
	if e.LastAction != "POST /v1/certifications" || e.Transport != "http" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestRecord_IgnoresEmptyActor(t *testing.T) {
	tr := New()
	tr.Record(Activity{Action: "POST /v1/microlots"})
	if roster := tr.Roster(0); len(roster) != 0 {
		t.Fatalf("expected 0 entries for empty actor, got %d", len(roster))
	}
}

func TestRoster_StaleThreshold(t *testing.T) {
	tr := New()

	tr.Record(Activity{Actor: "old", Action: "a"})
	tr.Record(Activity{Actor: "new", Action: "a"})

	tr.mu.Lock()
	tr.actors["old"].lastSeen = time.Now().Add(-2 * time.Hour)
	tr.mu.Unlock()

	roster := tr.Roster(time.Hour)
	if len(roster) != 1 || roster[0].Actor != "new" {
		t.Fatalf("roster with threshold = %+v", roster)
	}
	if all := tr.Roster(0); len(all) != 2 {
		t.Fatalf("expected 2 entries without threshold, got %d", len(all))
	}
}

func TestRoster_SortedByMostRecent(t *testing.T) {
	tr := New()

	tr.Record(Activity{Actor: "first", Action: "a"})
	time.Sleep(5 * time.Millisecond)
	tr.Record(Activity{Actor: "second", Action: "a"})
	time.Sleep(5 * time.Millisecond)
	tr.Record(Activity{Actor: "third", Action: "a"})

	roster := tr.Roster(0)
	if len(roster) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(roster))
	}
	if roster[0].Actor != "third" || roster[2].Actor != "first" {
		t.Errorf("order = %s, %s, %s", roster[0].Actor, roster[1].Actor, roster[2].Actor)
	}
}

func TestSweep_MarksQuietActorsIdle(t *testing.T) {
	tr := New()
	tr.Record(Activity{Actor: "quiet", Action: "a"})
	tr.Record(Activity{Actor: "busy", Action: "a"})

	tr.mu.Lock()
	tr.actors["quiet"].lastSeen = time.Now().Add(-time.Hour)
	tr.mu.Unlock()

	var idle []string
	tr.sweep(&ReaperConfig{
		IdleThreshold: 30 * time.Minute,
		EvictAfter:    24 * time.Hour,
		OnIdle:        func(actor string) { idle = append(idle, actor) },
	})

	if len(idle) != 1 || idle[0] != "quiet" {
		t.Fatalf("idle = %v", idle)
	}
	for _, e := range tr.Roster(0) {
		if e.Idle != (e.Actor == "quiet") {
			t.Errorf("%s idle = %v", e.Actor, e.Idle)
		}
	}
}

func TestSweep_ActiveAgainClearsIdle(t *testing.T) {
	tr := New()
	tr.Record(Activity{Actor: "back", Action: "a"})
	tr.mu.Lock()
	tr.actors["back"].lastSeen = time.Now().Add(-time.Hour)
	tr.mu.Unlock()

	tr.sweep(&ReaperConfig{IdleThreshold: 30 * time.Minute, EvictAfter: 24 * time.Hour})
	tr.Record(Activity{Actor: "back", Action: "b"})

	roster := tr.Roster(0)
	if len(roster) != 1 {
		t.Fatalf("roster = %+v", roster)
	}
	if roster[0].Idle || !roster[0].IdleSince.IsZero() {
		t.Error("expected actor to be active again")
	}
	if roster[0].ActionCount != 2 {
		t.Errorf("expected 2 actions, got %d", roster[0].ActionCount)
	}
}

func TestSweep_EvictsLongIdleActors(t *testing.T) {
	tr := New()
	tr.Record(Activity{Actor: "gone", Action: "a"})
	tr.mu.Lock()
	st := tr.actors["gone"]
	st.idle = true
	st.idleSince = time.Now().Add(-25 * time.Hour)
	tr.mu.Unlock()

	tr.sweep(&ReaperConfig{IdleThreshold: 30 * time.Minute, EvictAfter: 24 * time.Hour})

	tr.mu.RLock()
	_, exists := tr.actors["gone"]
	tr.mu.RUnlock()
	if exists {
		t.Error("expected long-idle actor to be evicted")
	}
}

func TestStartReaper_StopsCleanly(t *testing.T) {
	tr := New()
	tr.StartReaper(&ReaperConfig{SweepInterval: 50 * time.Millisecond})
	time.Sleep(150 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return within 2 seconds")
	}
}
