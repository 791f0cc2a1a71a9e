package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// Destination receives a complete JSONL export. Implementations replace
// whatever they held before.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

func destName(d Destination, i int) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("destination %d", i)
}

// Scheduler exports the ledger on an interval. An export whose records are
// identical to the last successful one is not written again, so quiet
// periods do not produce a stream of identical uploads or empty commits.
type Scheduler struct {
	store    store.Store
	dests    []Destination
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSum  [sha256.Size]byte
	haveLast bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(s store.Store, dests []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: s, dests: dests, interval: interval, logger: logger}
}

// Start archives once right away and then on every tick until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("ledger archive failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels any archive in flight and waits for the loop to exit. It is
// a no-op if Start was never called.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// RunOnce exports the ledger and hands it to every destination. It reports
// whether anything was written. Every destination is attempted; their
// errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		return false, fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()
	sum := contentSum(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveLast && sum == s.lastSum {
		s.logger.Debug("ledger unchanged, archive skipped")
		return false, nil
	}

	var errs []error
	for i, d := range s.dests {
		if err := d.Write(ctx, data); err != nil {
			name := destName(d, i)
			s.logger.Error("archive write failed", "destination", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return true, err
	}
	s.lastSum, s.haveLast = sum, true
	s.logger.Info("ledger archived", "destinations", len(s.dests), "bytes", len(data))
	return true, nil
}

// contentSum hashes everything after the header line, whose timestamp
// changes on every export.
func contentSum(data []byte) [sha256.Size]byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	return sha256.Sum256(data)
}
