package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/cafetrace/internal/events"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// Verification failure codes.
const (
	CodeEmpty        = "empty_chain"
	CodeGap          = "gap"
	CodeDuplicate    = "duplicate_block"
	CodeForeignEvent = "foreign_event"
	CodeLinkMismatch = "link_mismatch"
	CodeHashMismatch = "hash_mismatch"
	CodeTailMismatch = "tail_mismatch"
)

// Verification is the result of checking one microlot's chain.
type Verification struct {
	MicrolotID    string `json:"microlot_id"`
	Valid         bool   `json:"valid"`
	Blocks        int    `json:"blocks"`
	HeadHash      string `json:"head_hash,omitempty"`
	BrokenAtBlock int64  `json:"broken_at_block,omitempty"`
	Code          string `json:"code,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// chainBroken carries a failed verification out of a write attempt so the
// caller can flag the microlot after the transaction has ended.
type chainBroken struct {
	v Verification
}

func (c *chainBroken) Error() string {
	return fmt.Sprintf("chain broken at block %d: %s", c.v.BrokenAtBlock, c.v.Reason)
}

func brokenChain(v Verification) error {
	return &Error{
		Kind: ErrIntegrityViolation,
		Msg:  fmt.Sprintf("microlot %s: block %d: %s", v.MicrolotID, v.BrokenAtBlock, v.Reason),
		Err:  &chainBroken{v: v},
	}
}

// VerifyEvents checks a chain given in block order: blocks are contiguous
// from 1, belong to the microlot, link to their predecessor and match their
// recomputed hash. It reports the first block that fails.
func VerifyEvents(microlotID string, chain []*model.TraceabilityEvent) Verification {
	v := Verification{MicrolotID: microlotID}
	fail := func(block int64, code, format string, args ...any) Verification {
		v.Valid = false
		v.BrokenAtBlock = block
		v.Code = code
		v.Reason = fmt.Sprintf(format, args...)
		return v
	}

	if len(chain) == 0 {
		return fail(1, CodeEmpty, "chain has no genesis block")
	}

	var prev *model.TraceabilityEvent
	for i, e := range chain {
		want := int64(i + 1)
		switch {
		case e.BlockNumber > want:
			return fail(want, CodeGap, "block %d is missing", want)
		case e.BlockNumber < want:
			return fail(e.BlockNumber, CodeDuplicate, "block %d appears more than once", e.BlockNumber)
		}
		if e.MicrolotID != microlotID {
			return fail(want, CodeForeignEvent, "block %d belongs to microlot %s", want, e.MicrolotID)
		}

		h, err := HashEvent(e)
		if err != nil {
			return fail(want, CodeHashMismatch, "block %d cannot be hashed: %v", want, err)
		}
		if h != e.CurrentHash {
			return fail(want, CodeHashMismatch, "block %d content does not match its hash", want)
		}

		if prev == nil {
			if e.PreviousHash != nil {
				return fail(want, CodeLinkMismatch, "genesis block has a previous hash")
			}
		} else if e.PreviousHash == nil || *e.PreviousHash != prev.CurrentHash {
			return fail(want, CodeLinkMismatch, "block %d does not link to block %d", want, prev.BlockNumber)
		}
		prev = e
	}

	v.Valid = true
	v.Blocks = len(chain)
	v.HeadHash = prev.CurrentHash
	return v
}

// VerifyMicrolot checks the chain and, when the chain itself is sound, that
// the microlot's tail pointer agrees with it. A truncated tail is only
// visible this way.
func VerifyMicrolot(m *model.Microlot, chain []*model.TraceabilityEvent) Verification {
	v := VerifyEvents(m.ID, chain)
	if v.Valid && int64(v.Blocks) != m.TailBlock {
		last := int64(v.Blocks)
		return Verification{
			MicrolotID:    m.ID,
			BrokenAtBlock: min(last, m.TailBlock) + 1,
			Code:          CodeTailMismatch,
			Reason:        fmt.Sprintf("tail pointer is %d but last block is %d", m.TailBlock, last),
		}
	}
	return v
}

// VerifyChain loads and verifies a microlot's chain. A broken chain is
// reported in the result, not as an error, and flags the microlot so that
// further appends fail until the flag is resolved.
func (s *Service) VerifyChain(ctx context.Context, microlotID string) (*Verification, error) {
	m, err := s.store.GetMicrolot(ctx, microlotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("microlot %s", microlotID)
		}
		return nil, err
	}
	chain, err := s.store.ListEvents(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("loading chain: %w", err)
	}

	v := VerifyMicrolot(m, chain)
	if !v.Valid && (m.IntegrityFlag == nil || m.IntegrityFlag.BrokenAtBlock != v.BrokenAtBlock) {
		s.raiseViolation(ctx, v)
	}
	return &v, nil
}

// ResolveIntegrity clears a microlot's integrity flag after the chain has
// been repaired out of band. The chain is verified again first; a chain
// that is still broken stays flagged.
func (s *Service) ResolveIntegrity(ctx context.Context, microlotID, actorID, note string) (*Verification, error) {
	if err := s.requirePrivilege(ctx, actorID, "resolve integrity flags"); err != nil {
		return nil, err
	}
	m, err := s.store.GetMicrolot(ctx, microlotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("microlot %s", microlotID)
		}
		return nil, err
	}
	if m.IntegrityFlag == nil {
		return nil, invalidf("microlot %s is not flagged", microlotID)
	}
	chain, err := s.store.ListEvents(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("loading chain: %w", err)
	}
	v := VerifyMicrolot(m, chain)
	if !v.Valid {
		return &v, &Error{
			Kind: ErrIntegrityViolation,
			Msg:  fmt.Sprintf("microlot %s is still broken at block %d: %s", m.ID, v.BrokenAtBlock, v.Reason),
		}
	}

	if err := s.store.SetIntegrityFlag(ctx, m.ID, nil); err != nil {
		return nil, fmt.Errorf("clearing integrity flag: %w", err)
	}
	s.logger.Info("integrity flag cleared", "microlot_id", m.ID, "actor", actorID, "note", note)
	s.publish(ctx, events.TopicIntegrityResolved, m.ID, events.IntegrityResolved{
		MicrolotID: m.ID,
		ResolvedBy: actorID,
		Note:       note,
	})
	return &v, nil
}

// handleBrokenChain flags the microlot when err reports a chain found broken
// during a write.
func (s *Service) handleBrokenChain(ctx context.Context, err error) {
	var cb *chainBroken
	if errors.As(err, &cb) {
		s.raiseViolation(ctx, cb.v)
	}
}

// raiseViolation flags the microlot and reports the violation on the audit
// channel.
func (s *Service) raiseViolation(ctx context.Context, v Verification) {
	now := s.clock()
	s.logger.Error("chain integrity violation",
		"microlot_id", v.MicrolotID,
		"broken_at_block", v.BrokenAtBlock,
		"code", v.Code,
		"reason", v.Reason,
	)
	flag := &model.IntegrityFlag{BrokenAtBlock: v.BrokenAtBlock, Reason: v.Reason, FlaggedAt: now}
	if err := s.store.SetIntegrityFlag(ctx, v.MicrolotID, flag); err != nil {
		s.logger.Error("failed to flag microlot", "microlot_id", v.MicrolotID, "error", err)
	}
	s.publish(ctx, events.TopicIntegrityViolation, v.MicrolotID, events.IntegrityViolation{
		MicrolotID:    v.MicrolotID,
		Code:          v.Code,
		BrokenAtBlock: v.BrokenAtBlock,
		Reason:        v.Reason,
		DetectedAt:    now,
	})
	if f, ok := s.publisher.(events.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			s.logger.Warn("failed to flush audit event", "microlot_id", v.MicrolotID, "error", err)
		}
	}
}
