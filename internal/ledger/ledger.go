// Package ledger implements the microlot traceability ledger: the hash
// chain, the lifecycle state machine, the quality gate, certifications,
// chain verification and the public provenance view.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/events"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// Defaults for Options.
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 10 * time.Millisecond
	DefaultMaxBackoff  = 250 * time.Millisecond
)

// Options tunes a Service. The zero value is usable.
type Options struct {
	Authorizer  Authorizer
	Logger      *slog.Logger
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Service is the ledger. It is safe for concurrent use; all state lives in
// the store.
type Service struct {
	store       store.Store
	publisher   events.Publisher
	auth        Authorizer
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

// New creates a Service. A nil publisher disables event publishing.
func New(s store.Store, p events.Publisher, opts Options) *Service {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	svc := &Service{
		store:       s,
		publisher:   p,
		auth:        opts.Authorizer,
		logger:      opts.Logger,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		now:         opts.Now,
	}
	if svc.auth == nil {
		svc.auth = StaticAuthorizer(nil)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = DefaultMaxAttempts
	}
	if svc.baseBackoff <= 0 {
		svc.baseBackoff = DefaultBaseBackoff
	}
	if svc.maxBackoff < svc.baseBackoff {
		svc.maxBackoff = max(DefaultMaxBackoff, svc.baseBackoff)
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Store returns the underlying store.
func (s *Service) Store() store.Store {
	return s.store
}

func (s *Service) clock() time.Time {
	return CanonicalDate(s.now())
}

// withRetry runs fn in a transaction, retrying from scratch while the store
// reports a conflict. Other errors are returned unchanged.
func (s *Service) withRetry(ctx context.Context, op string, fn func(tx store.Store) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.store.RunInTransaction(ctx, fn)
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}
		wait := s.backoff(attempt)
		s.logger.Debug("write conflict, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	s.logger.Warn("write conflict retries exhausted", "op", op, "attempts", s.maxAttempts, "error", err)
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf("%s: gave up after %d attempts", op, s.maxAttempts), Err: err}
}

// backoff returns a jittered exponential delay for the given attempt (1-based).
func (s *Service) backoff(attempt int) time.Duration {
	d := s.baseBackoff << (attempt - 1)
	if d <= 0 || d > s.maxBackoff {
		d = s.maxBackoff
	}
	half := d / 2
	return half + rand.N(half+1)
}

// publish emits an event on the bus. Failures are logged and never reach
// the caller.
func (s *Service) publish(ctx context.Context, topic, microlotID string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "microlot_id", microlotID, "error", err)
	}
}

func (s *Service) requirePrivilege(ctx context.Context, actorID, action string) error {
	if !s.auth.IsPrivileged(ctx, actorID) {
		return forbiddenf("actor %q may not %s", actorID, action)
	}
	return nil
}
