// Package presence keeps an in-memory roster of the actors writing to the
// ledger.
//
// The server records one Activity per mutating request, over either
// transport. A background reaper marks actors idle after a quiet period and
// eventually forgets them. Nothing here is persisted; the chain itself is the
// durable record of who did what.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is one actor's activity as reported by Roster.
type Entry struct {
	Actor       string    `json:"actor"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	LastAction  string    `json:"last_action"`         // e.g. "POST /v1/microlots", "AdvanceStatus"
	Transport   string    `json:"transport,omitempty"` // "http" or "grpc"
	ActionCount int64     `json:"action_count"`
	IdleSecs    float64   `json:"idle_secs"`
	Idle        bool      `json:"idle,omitempty"` // true once the reaper marked the actor idle
	IdleSince   time.Time `json:"idle_since,omitzero"`
}

// Activity is a single write made by an actor.
type Activity struct {
	Actor     string
	Action    string
	Transport string
}

// ReaperConfig configures the background idle reaper.
type ReaperConfig struct {
	// IdleThreshold is how long an actor must be quiet before being marked idle.
	// Default: 30 minutes.
	IdleThreshold time.Duration

	// EvictAfter is how long an actor stays idle before it is dropped.
	// Default: 24 hours.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 1 minute.
	SweepInterval time.Duration

	// OnIdle is called for each actor newly marked idle, outside the lock.
	OnIdle func(actor string)
}

// Tracker maintains the roster.
type Tracker struct {
	mu      sync.RWMutex
	actors  map[string]*actorState
	started time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type actorState struct {
	firstSeen   time.Time
	lastSeen    time.Time
	lastAction  string
	transport   string
	actionCount int64
	idle        bool
	idleSince   time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		actors:  make(map[string]*actorState),
		started: time.Now(),
	}
}

// Record notes an activity. Activities without an actor are ignored.
func (t *Tracker) Record(a Activity) {
	if a.Actor == "" {
		return
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.actors[a.Actor]
	if !ok {
		state = &actorState{firstSeen: now}
		t.actors[a.Actor] = state
	}

	if state.idle {
		slog.Debug("presence: actor active again", "actor", a.Actor)
		state.idle = false
		state.idleSince = time.Time{}
	}

	state.lastSeen = now
	state.lastAction = a.Action
	state.actionCount++
	if a.Transport != "" {
		state.transport = a.Transport
	}
}

// Roster returns every tracked actor, most recently active first. Actors
// quiet for longer than staleThreshold are left out; 0 includes everyone.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(t.actors))
	for actor, state := range t.actors {
		idle := now.Sub(state.lastSeen)
		if staleThreshold > 0 && idle > staleThreshold {
			continue
		}
		entries = append(entries, Entry{
			Actor:       actor,
			FirstSeen:   state.firstSeen,
			LastSeen:    state.lastSeen,
			LastAction:  state.lastAction,
			Transport:   state.transport,
			ActionCount: state.actionCount,
			IdleSecs:    idle.Seconds(),
			Idle:        state.idle,
			IdleSince:   state.idleSince,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// StartReaper launches the idle reaper. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 30 * time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := time.Now()
	var newlyIdle []string

	t.mu.Lock()
	for actor, state := range t.actors {
		if state.idle {
			if now.Sub(state.idleSince) > cfg.EvictAfter {
				delete(t.actors, actor)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.IdleThreshold {
			state.idle = true
			state.idleSince = now
			newlyIdle = append(newlyIdle, actor)
		}
	}
	t.mu.Unlock()

	for _, actor := range newlyIdle {
		slog.Info("presence: actor idle", "actor", actor, "threshold", cfg.IdleThreshold)
		if cfg.OnIdle != nil {
			cfg.OnIdle(actor)
		}
	}
}
