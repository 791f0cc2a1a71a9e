package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

const sweepPageSize = 200

// SweepResult summarises one pass over every chain.
type SweepResult struct {
	Checked int      `json:"checked"`
	Broken  []string `json:"broken,omitempty"` // microlot ids
}

// Sweep verifies every microlot's chain, including deactivated ones.
// Broken chains are flagged by VerifyChain.
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}
	for offset := 0; ; offset += sweepPageSize {
		page, total, err := s.store.ListMicrolots(ctx, model.MicrolotFilter{
			IncludeInactive: true,
			Sort:            "created_at",
			Limit:           sweepPageSize,
			Offset:          offset,
		})
		if err != nil {
			return res, fmt.Errorf("listing microlots: %w", err)
		}
		for _, m := range page {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			v, err := s.VerifyChain(ctx, m.ID)
			if err != nil {
				return res, fmt.Errorf("verifying %s: %w", m.ID, err)
			}
			res.Checked++
			if !v.Valid {
				res.Broken = append(res.Broken, m.ID)
			}
		}
		if len(page) == 0 || offset+len(page) >= total {
			return res, nil
		}
	}
}

// Sweeper runs Sweep on an interval.
type Sweeper struct {
	ledger   *Service
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper. It does nothing until Start is called.
func NewSweeper(l *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{ledger: l, interval: interval, logger: logger}
}

// Start begins periodic sweeps. The first sweep runs one interval after
// start so that server startup is not slowed by a full scan.
func (w *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop cancels the sweeper and waits for a running sweep to finish.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			res, err := w.ledger.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("integrity sweep failed", "checked", res.Checked, "err", err)
				continue
			}
			w.logger.Info("integrity sweep completed",
				"checked", res.Checked,
				"broken", len(res.Broken),
				"duration", time.Since(start),
			)
		}
	}
}
