package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/events"
	"github.com/alfredjeanlab/cafetrace/internal/idgen"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// AppendInput holds the parameters of a new chain event.
type AppendInput struct {
	MicrolotID  string               `json:"microlot_id"`
	EventType   model.EventType      `json:"event_type"`
	Description string               `json:"description"`
	EventDate   *time.Time           `json:"event_date,omitempty"` // defaults to now
	Metadata    *model.EventMetadata `json:"metadata,omitempty"`
	ActorID     string               `json:"actor_id"`
}

// appendResult is what a committed append produced.
type appendResult struct {
	event  *model.TraceabilityEvent
	status model.Status
}

// AppendEvent validates and appends one event to a microlot's chain. The
// append is retried from a fresh read while it loses races with concurrent
// writers, up to the configured attempt limit.
func (s *Service) AppendEvent(ctx context.Context, in AppendInput) (*model.TraceabilityEvent, error) {
	if err := s.checkAppend(ctx, &in); err != nil {
		return nil, err
	}

	var res appendResult
	err := s.withRetry(ctx, "append", func(tx store.Store) error {
		r, err := s.appendInTx(ctx, tx, in)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		s.handleBrokenChain(ctx, err)
		return nil, err
	}

	s.publish(ctx, events.TopicEventAppended, in.MicrolotID, events.EventAppended{Event: res.event, Status: res.status})
	return res.event, nil
}

// AdvanceStatus appends a lifecycle or REVERT event and returns the updated
// microlot. Annotation events are rejected; use Annotate.
func (s *Service) AdvanceStatus(ctx context.Context, in AppendInput) (*model.Microlot, error) {
	if in.EventType.IsAnnotation() {
		return nil, invalidf("%s does not change status", in.EventType)
	}
	if _, err := s.AppendEvent(ctx, in); err != nil {
		return nil, err
	}
	return s.GetMicrolot(ctx, in.MicrolotID)
}

// Annotate appends a manual TRANSPORT or NOTE event. Quality and
// certification events are only written by their own operations.
func (s *Service) Annotate(ctx context.Context, in AppendInput) (*model.TraceabilityEvent, error) {
	switch in.EventType {
	case model.EventTransport, model.EventNote:
	default:
		return nil, invalidf("%q is not a manual annotation; use %s or %s", in.EventType, model.EventTransport, model.EventNote)
	}
	return s.AppendEvent(ctx, in)
}

// checkAppend validates the caller-supplied parts of an append that do not
// depend on chain state, and fills in the event date.
func (s *Service) checkAppend(ctx context.Context, in *AppendInput) error {
	if strings.TrimSpace(in.MicrolotID) == "" {
		return invalidf("microlot_id is required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return invalidf("actor_id is required")
	}
	if !in.EventType.IsValid() {
		return invalidf("unknown event type %q", in.EventType)
	}
	if err := model.ValidateDescription(in.Description); err != nil {
		return validation(err)
	}
	if err := model.ValidateMetadata(in.Metadata); err != nil {
		return validation(err)
	}
	if RequiresPrivilege(in.EventType) {
		if err := s.requirePrivilege(ctx, in.ActorID, "append "+string(in.EventType)); err != nil {
			return err
		}
	}
	if in.EventDate == nil {
		now := s.clock()
		in.EventDate = &now
	} else {
		d := CanonicalDate(*in.EventDate)
		in.EventDate = &d
	}
	return nil
}

// appendInTx performs one attempt of the append protocol inside tx: lock the
// microlot, check the transition, read and self-check the tail, link and
// insert the new block, then move the cached status and tail pointer.
func (s *Service) appendInTx(ctx context.Context, tx store.Store, in AppendInput) (appendResult, error) {
	m, err := tx.LockMicrolot(ctx, in.MicrolotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return appendResult{}, notFoundf("microlot %s", in.MicrolotID)
		}
		return appendResult{}, err
	}
	if !m.IsActive {
		return appendResult{}, notFoundf("microlot %s", in.MicrolotID)
	}
	if m.IntegrityFlag != nil {
		return appendResult{}, &Error{
			Kind: ErrIntegrityViolation,
			Msg:  fmt.Sprintf("microlot %s is flagged at block %d: %s", m.ID, m.IntegrityFlag.BrokenAtBlock, m.IntegrityFlag.Reason),
		}
	}

	next, err := Transition(m.Status, in.EventType, in.Metadata)
	if err != nil {
		return appendResult{}, err
	}

	tail, err := tx.GetChainTail(ctx, m.ID)
	if err != nil {
		return appendResult{}, err
	}
	if err := checkTail(m, tail); err != nil {
		return appendResult{}, err
	}

	meta := copyMetadata(in.Metadata)
	if in.EventType == model.EventRevert {
		if meta.Revert == nil {
			meta.Revert = &model.RevertDetails{}
		}
		meta.Revert.From = m.Status
		meta.Revert.To = next
	}

	ev, err := s.link(m.ID, tail, in.EventType, *in.EventDate, in.Description, meta, in.ActorID)
	if err != nil {
		return appendResult{}, err
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return appendResult{}, err
	}
	if err := tx.UpdateMicrolotStatus(ctx, m.ID, next, ev.BlockNumber); err != nil {
		return appendResult{}, err
	}
	return appendResult{event: ev, status: next}, nil
}

// link builds the block that follows tail (nil for genesis) and seals it
// with its hash.
func (s *Service) link(microlotID string, tail *model.TraceabilityEvent, eventType model.EventType, date time.Time, description string, meta model.EventMetadata, actorID string) (*model.TraceabilityEvent, error) {
	id, err := idgen.GenerateWithPrefix(idgen.PrefixEvent)
	if err != nil {
		return nil, fmt.Errorf("generating event id: %w", err)
	}
	ev := &model.TraceabilityEvent{
		ID:                 id,
		MicrolotID:         microlotID,
		BlockNumber:        1,
		EventType:          eventType,
		EventDate:          CanonicalDate(date),
		Description:        description,
		Metadata:           meta,
		ResponsibleActorID: actorID,
	}
	if tail != nil {
		prev := tail.CurrentHash
		ev.BlockNumber = tail.BlockNumber + 1
		ev.PreviousHash = &prev
	}
	ev.CurrentHash, err = HashEvent(ev)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// checkTail verifies the tail block still matches its own hash and the
// microlot's tail pointer before anything is linked to it.
func checkTail(m *model.Microlot, tail *model.TraceabilityEvent) error {
	if tail == nil {
		return brokenChain(Verification{
			MicrolotID:    m.ID,
			BrokenAtBlock: 1,
			Code:          CodeEmpty,
			Reason:        "chain has no genesis block",
		})
	}
	if tail.BlockNumber != m.TailBlock {
		return brokenChain(Verification{
			MicrolotID:    m.ID,
			BrokenAtBlock: min(tail.BlockNumber, m.TailBlock) + 1,
			Code:          CodeTailMismatch,
			Reason:        fmt.Sprintf("tail pointer is %d but last block is %d", m.TailBlock, tail.BlockNumber),
		})
	}
	h, err := HashEvent(tail)
	if err != nil || h != tail.CurrentHash {
		return brokenChain(Verification{
			MicrolotID:    m.ID,
			BrokenAtBlock: tail.BlockNumber,
			Code:          CodeHashMismatch,
			Reason:        "stored hash does not match recomputed hash",
		})
	}
	return nil
}

// copyMetadata returns a value copy of m whose nested records the writer may
// modify without touching the caller's input.
func copyMetadata(m *model.EventMetadata) model.EventMetadata {
	if m == nil {
		return model.EventMetadata{}
	}
	out := *m
	if m.Revert != nil {
		r := *m.Revert
		out.Revert = &r
	}
	return out
}
