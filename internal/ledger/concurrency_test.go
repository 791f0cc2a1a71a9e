package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
	"github.com/alfredjeanlab/cafetrace/internal/store/memory"
)

// barrierStore holds the first n tail reads until all n have happened, so
// that n writers are guaranteed to race for the same block.
type barrierStore struct {
	*memory.Store
	n       int32
	arrived atomic.Int32
	reads   atomic.Int32
	release chan struct{}
}

func newBarrierStore(st *memory.Store, n int) *barrierStore {
	return &barrierStore{Store: st, n: int32(n), release: make(chan struct{})}
}

func (b *barrierStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return b.Store.RunInTransaction(ctx, func(tx store.Store) error {
		return fn(&barrierTx{Store: tx, b: b})
	})
}

type barrierTx struct {
	store.Store
	b *barrierStore
}

func (t *barrierTx) GetChainTail(ctx context.Context, microlotID string) (*model.TraceabilityEvent, error) {
	tail, err := t.Store.GetChainTail(ctx, microlotID)
	t.b.reads.Add(1)
	if n := t.b.arrived.Add(1); n <= t.b.n {
		if n == t.b.n {
			close(t.b.release)
		}
		select {
		case <-t.b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tail, err
}

func TestConcurrentStatusUpdates_OneRetries(t *testing.T) {
	mem := memory.New()
	seedReference(mem)
	setup := New(mem, nil, Options{Logger: testLogger()})
	m := createMicrolot(t, setup)

	bs := newBarrierStore(mem, 2)
	svc := New(bs, nil, Options{
		Logger:      testLogger(),
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.AdvanceStatus(ctx, AppendInput{
			MicrolotID: m.ID, EventType: model.EventInProcessing, Description: "to the wet mill", ActorID: "op-a",
		})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Annotate(ctx, AppendInput{
			MicrolotID: m.ID, EventType: model.EventTransport, Description: "cherries hauled", ActorID: "op-b",
		})
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}
	if got := bs.reads.Load(); got != 3 {
		t.Errorf("tail reads = %d, want 3 (two racing attempts and one retry)", got)
	}

	chain, err := mem.ListEvents(ctx, m.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("len(chain) = %d, want 3", len(chain))
	}
	seen := map[int64]bool{}
	for _, e := range chain {
		if seen[e.BlockNumber] {
			t.Fatalf("block %d written twice", e.BlockNumber)
		}
		seen[e.BlockNumber] = true
	}
	if !seen[2] || !seen[3] {
		t.Errorf("blocks = %v, want 1..3", seen)
	}
	mustVerify(t, svc, m.ID)

	got, _ := svc.GetMicrolot(ctx, m.ID)
	if got.Status != model.StatusInProcessing || got.TailBlock != 3 {
		t.Errorf("status=%s tail=%d, want IN_PROCESSING/3", got.Status, got.TailBlock)
	}
}

func TestConcurrentAppends_NoForks(t *testing.T) {
	svc, mem, _ := newTestLedger(t)
	svc.maxAttempts = 200
	m := createMicrolot(t, svc)
	other := createMicrolot(t, svc)

	const writers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, 2*writers)
	for i := 0; i < writers; i++ {
		for _, id := range []string{m.ID, other.ID} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, err := svc.Annotate(context.Background(), AppendInput{
					MicrolotID:  id,
					EventType:   model.EventNote,
					Description: fmt.Sprintf("note %d", i),
					ActorID:     fmt.Sprintf("op-%d", i),
				})
				if err != nil {
					errCh <- err
				}
			}(i, id)
		}
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("append failed: %v", err)
	}

	for _, id := range []string{m.ID, other.ID} {
		v := mustVerify(t, svc, id)
		if v.Blocks != writers+1 {
			t.Errorf("%s: blocks = %d, want %d", id, v.Blocks, writers+1)
		}
		chain, _ := mem.ListEvents(context.Background(), id)
		for i, e := range chain {
			if e.BlockNumber != int64(i+1) {
				t.Fatalf("%s: index %d holds block %d", id, i, e.BlockNumber)
			}
		}
	}
}

func TestAppendEvent_RetriesExhausted(t *testing.T) {
	mem := memory.New()
	seedReference(mem)
	m := createMicrolot(t, New(mem, nil, Options{Logger: testLogger()}))

	cs := &countingStore{Store: mem, alwaysFail: true, failWithCode: fmt.Errorf("%w: serialization failure", store.ErrConflict)}
	svc := New(cs, nil, Options{Logger: testLogger(), MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := svc.AppendEvent(context.Background(), AppendInput{MicrolotID: m.ID, EventType: model.EventNote, ActorID: operatorActor})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !errors.Is(err, store.ErrConflict) {
		t.Error("cause should be preserved")
	}
	if got := cs.txs.Load(); got != 3 {
		t.Errorf("transactions = %d, want 3", got)
	}
}

func TestAppendEvent_NonConflictErrorsAreNotRetried(t *testing.T) {
	mem := memory.New()
	seedReference(mem)
	m := createMicrolot(t, New(mem, nil, Options{Logger: testLogger()}))

	boom := errors.New("connection reset")
	cs := &countingStore{Store: mem, alwaysFail: true, failWithCode: boom}
	svc := New(cs, nil, Options{Logger: testLogger()})

	_, err := svc.AppendEvent(context.Background(), AppendInput{MicrolotID: m.ID, EventType: model.EventNote, ActorID: operatorActor})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if got := cs.txs.Load(); got != 1 {
		t.Errorf("transactions = %d, want 1", got)
	}
}

func TestAppendEvent_CallerErrorsAreNotRetried(t *testing.T) {
	mem := memory.New()
	seedReference(mem)
	m := createMicrolot(t, New(mem, nil, Options{Logger: testLogger()}))

	cs := &countingStore{Store: mem}
	svc := New(cs, nil, Options{Logger: testLogger()})
	_, err := svc.AdvanceStatus(context.Background(), AppendInput{MicrolotID: m.ID, EventType: model.EventExported, ActorID: operatorActor})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := cs.txs.Load(); got != 1 {
		t.Errorf("transactions = %d, want 1", got)
	}
}

func TestAppendEvent_CanceledContext(t *testing.T) {
	svc, mem, _ := newTestLedger(t)
	m := createMicrolot(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.AppendEvent(ctx, AppendInput{MicrolotID: m.ID, EventType: model.EventNote, ActorID: operatorActor})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	chain, _ := mem.ListEvents(context.Background(), m.ID)
	if len(chain) != 1 {
		t.Errorf("canceled append left %d blocks", len(chain))
	}
}

func TestAppendEvent_DeadlineDuringBackoff(t *testing.T) {
	mem := memory.New()
	seedReference(mem)
	m := createMicrolot(t, New(mem, nil, Options{Logger: testLogger()}))

	cs := &countingStore{Store: mem, alwaysFail: true, failWithCode: store.ErrConflict}
	svc := New(cs, nil, Options{Logger: testLogger(), MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := svc.AppendEvent(ctx, AppendInput{MicrolotID: m.ID, EventType: model.EventNote, ActorID: operatorActor})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("append took %v after the deadline", elapsed)
	}
}
