// Package memory implements store.Store in process memory.
//
// Transactions are optimistic: each one works on a snapshot and records the
// version of every microlot it locks or writes. Every write to a microlot or
// its chain bumps that version, and commit re-checks the recorded versions
// under the store lock, failing with store.ErrConflict if another transaction
// changed any of those microlots first. Records are never mutated in
// place once stored, so snapshots can share them.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

// PutFarm seeds reference data.
func (s *Store) PutFarm(f model.Farm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.farms[f.ID] = &f
}

// PutLot seeds reference data.
func (s *Store) PutLot(l model.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.Farm = nil
	s.st.lots[l.ID] = &l
}

// PutHarvest seeds reference data.
func (s *Store) PutHarvest(h model.Harvest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.harvests[h.ID] = &h
}

// Corrupt rewrites a stored event outside the append path. It exists to
// exercise tamper detection.
func (s *Store) Corrupt(microlotID string, block int64, fn func(e *model.TraceabilityEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.st.events[microlotID]
	for i, e := range chain {
		if e.BlockNumber == block {
			next := make([]*model.TraceabilityEvent, len(chain))
			copy(next, chain)
			cp := copyEvent(e)
			fn(cp)
			next[i] = cp
			s.st.events[microlotID] = next
			return nil
		}
	}
	return store.ErrNotFound
}

// DeleteEvent removes a stored event outside the append path, leaving a gap.
func (s *Store) DeleteEvent(microlotID string, block int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.st.events[microlotID]
	for i, e := range chain {
		if e.BlockNumber == block {
			next := make([]*model.TraceabilityEvent, 0, len(chain)-1)
			next = append(next, chain[:i]...)
			next = append(next, chain[i+1:]...)
			s.st.events[microlotID] = next
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CreateMicrolot(ctx context.Context, m *model.Microlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createMicrolot(m)
}

func (s *Store) GetMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getMicrolot(id)
}

func (s *Store) GetMicrolotByCode(ctx context.Context, code string) (*model.Microlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getMicrolotByCode(code)
}

func (s *Store) ListMicrolots(ctx context.Context, filter model.MicrolotFilter) ([]*model.Microlot, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listMicrolots(filter)
}

// LockMicrolot outside a transaction is a plain read.
func (s *Store) LockMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	return s.GetMicrolot(ctx, id)
}

func (s *Store) UpdateMicrolotStatus(ctx context.Context, id string, status model.Status, tailBlock int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateMicrolotStatus(id, status, tailBlock)
}

func (s *Store) SetMicrolotActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setMicrolotActive(id, active)
}

func (s *Store) SetIntegrityFlag(ctx context.Context, id string, flag *model.IntegrityFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setIntegrityFlag(id, flag)
}

func (s *Store) AppendEvent(ctx context.Context, e *model.TraceabilityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.appendEvent(e)
}

func (s *Store) GetChainTail(ctx context.Context, microlotID string) (*model.TraceabilityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.chainTail(microlotID), nil
}

func (s *Store) ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listEvents(microlotID), nil
}

func (s *Store) CreateQualityRecord(ctx context.Context, r *model.QualityControlRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createQualityRecord(r)
}

func (s *Store) ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listQualityRecords(microlotID), nil
}

func (s *Store) CreateCertification(ctx context.Context, c *model.CertificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createCertification(c)
}

func (s *Store) GetCertification(ctx context.Context, id string) (*model.CertificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getCertification(id)
}

func (s *Store) ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listCertifications(microlotID), nil
}

func (s *Store) RevokeCertification(ctx context.Context, id string, at time.Time, by, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.revokeCertification(id, at, by, reason)
}

func (s *Store) GetLot(ctx context.Context, id string) (*model.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getLot(id)
}

func (s *Store) GetHarvest(ctx context.Context, id string) (*model.Harvest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getHarvest(id)
}

func (s *Store) GetStats(ctx context.Context) (*model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.stats(), nil
}

// RunInTransaction runs fn against a snapshot and applies its writes
// atomically if no chain it touched has moved in the meantime.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snap := s.st.clone()
	s.mu.Unlock()

	tx := &txStore{st: snap, observed: make(map[string]uint64)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *txStore) error {
	if len(tx.ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range tx.observed {
		if got := s.st.versions[id]; got != v {
			return fmt.Errorf("%w: microlot %s changed (version %d, now %d)", store.ErrConflict, id, v, got)
		}
	}

	next := s.st.clone()
	for _, op := range tx.ops {
		if err := op(next); err != nil {
			return err
		}
	}
	s.st = next
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// txStore buffers writes as operations replayed at commit.
type txStore struct {
	st       *state
	observed map[string]uint64
	ops      []func(*state) error
}

var _ store.Store = (*txStore)(nil)

// observe records the snapshot version of a microlot the first time the
// transaction touches it.
func (tx *txStore) observe(microlotID string) {
	if _, ok := tx.observed[microlotID]; !ok {
		tx.observed[microlotID] = tx.st.versions[microlotID]
	}
}

// write applies op to the snapshot and queues it for commit.
func (tx *txStore) write(op func(*state) error) error {
	if err := op(tx.st); err != nil {
		return err
	}
	tx.ops = append(tx.ops, op)
	return nil
}

func (tx *txStore) CreateMicrolot(ctx context.Context, m *model.Microlot) error {
	tx.observe(m.ID)
	cp := *m
	return tx.write(func(st *state) error { return st.createMicrolot(&cp) })
}

func (tx *txStore) GetMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	return tx.st.getMicrolot(id)
}

func (tx *txStore) GetMicrolotByCode(ctx context.Context, code string) (*model.Microlot, error) {
	return tx.st.getMicrolotByCode(code)
}

func (tx *txStore) ListMicrolots(ctx context.Context, filter model.MicrolotFilter) ([]*model.Microlot, int, error) {
	return tx.st.listMicrolots(filter)
}

func (tx *txStore) LockMicrolot(ctx context.Context, id string) (*model.Microlot, error) {
	m, err := tx.st.getMicrolot(id)
	if err != nil {
		return nil, err
	}
	tx.observe(id)
	return m, nil
}

func (tx *txStore) UpdateMicrolotStatus(ctx context.Context, id string, status model.Status, tailBlock int64) error {
	tx.observe(id)
	return tx.write(func(st *state) error { return st.updateMicrolotStatus(id, status, tailBlock) })
}

func (tx *txStore) SetMicrolotActive(ctx context.Context, id string, active bool) error {
	tx.observe(id)
	return tx.write(func(st *state) error { return st.setMicrolotActive(id, active) })
}

func (tx *txStore) SetIntegrityFlag(ctx context.Context, id string, flag *model.IntegrityFlag) error {
	tx.observe(id)
	var cp *model.IntegrityFlag
	if flag != nil {
		f := *flag
		cp = &f
	}
	return tx.write(func(st *state) error { return st.setIntegrityFlag(id, cp) })
}

func (tx *txStore) AppendEvent(ctx context.Context, e *model.TraceabilityEvent) error {
	tx.observe(e.MicrolotID)
	cp := copyEvent(e)
	return tx.write(func(st *state) error { return st.appendEvent(cp) })
}

func (tx *txStore) GetChainTail(ctx context.Context, microlotID string) (*model.TraceabilityEvent, error) {
	tx.observe(microlotID)
	return tx.st.chainTail(microlotID), nil
}

func (tx *txStore) ListEvents(ctx context.Context, microlotID string) ([]*model.TraceabilityEvent, error) {
	return tx.st.listEvents(microlotID), nil
}

func (tx *txStore) CreateQualityRecord(ctx context.Context, r *model.QualityControlRecord) error {
	cp := *r
	cp.Measurements = copyMeasurements(r.Measurements)
	return tx.write(func(st *state) error { return st.createQualityRecord(&cp) })
}

func (tx *txStore) ListQualityRecords(ctx context.Context, microlotID string) ([]*model.QualityControlRecord, error) {
	return tx.st.listQualityRecords(microlotID), nil
}

func (tx *txStore) CreateCertification(ctx context.Context, c *model.CertificationRecord) error {
	cp := *c
	return tx.write(func(st *state) error { return st.createCertification(&cp) })
}

func (tx *txStore) GetCertification(ctx context.Context, id string) (*model.CertificationRecord, error) {
	return tx.st.getCertification(id)
}

func (tx *txStore) ListCertifications(ctx context.Context, microlotID string) ([]*model.CertificationRecord, error) {
	return tx.st.listCertifications(microlotID), nil
}

func (tx *txStore) RevokeCertification(ctx context.Context, id string, at time.Time, by, reason string) error {
	return tx.write(func(st *state) error { return st.revokeCertification(id, at, by, reason) })
}

func (tx *txStore) GetLot(ctx context.Context, id string) (*model.Lot, error) {
	return tx.st.getLot(id)
}

func (tx *txStore) GetHarvest(ctx context.Context, id string) (*model.Harvest, error) {
	return tx.st.getHarvest(id)
}

func (tx *txStore) GetStats(ctx context.Context) (*model.Stats, error) {
	return tx.st.stats(), nil
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (tx *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(tx)
}

// Close is a no-op for a transaction store.
func (tx *txStore) Close() error {
	return nil
}

// state is the data held by a Store or a transaction snapshot.
type state struct {
	farms     map[string]*model.Farm
	lots      map[string]*model.Lot
	harvests  map[string]*model.Harvest
	microlots map[string]*model.Microlot
	codes     map[string]string
	events    map[string][]*model.TraceabilityEvent
	quality   map[string][]*model.QualityControlRecord
	certs     map[string]*model.CertificationRecord
	certOrder map[string][]string
	versions  map[string]uint64
}

func newState() *state {
	return &state{
		farms:     make(map[string]*model.Farm),
		lots:      make(map[string]*model.Lot),
		harvests:  make(map[string]*model.Harvest),
		microlots: make(map[string]*model.Microlot),
		codes:     make(map[string]string),
		events:    make(map[string][]*model.TraceabilityEvent),
		quality:   make(map[string][]*model.QualityControlRecord),
		certs:     make(map[string]*model.CertificationRecord),
		certOrder: make(map[string][]string),
		versions:  make(map[string]uint64),
	}
}

// clone copies the maps. Values and slices are shared; writers replace them
// rather than mutating.
func (st *state) clone() *state {
	return &state{
		farms:     cloneMap(st.farms),
		lots:      cloneMap(st.lots),
		harvests:  cloneMap(st.harvests),
		microlots: cloneMap(st.microlots),
		codes:     cloneMap(st.codes),
		events:    cloneMap(st.events),
		quality:   cloneMap(st.quality),
		certs:     cloneMap(st.certs),
		certOrder: cloneMap(st.certOrder),
		versions:  cloneMap(st.versions),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *state) createMicrolot(m *model.Microlot) error {
	if _, ok := st.microlots[m.ID]; ok {
		return fmt.Errorf("%w: microlot %s already exists", store.ErrConflict, m.ID)
	}
	if _, ok := st.codes[m.Code]; ok {
		return fmt.Errorf("%w: code %s already in use", store.ErrConflict, m.Code)
	}
	cp := copyMicrolot(m)
	st.microlots[m.ID] = cp
	st.codes[m.Code] = m.ID
	st.versions[m.ID]++
	return nil
}

func (st *state) getMicrolot(id string) (*model.Microlot, error) {
	m, ok := st.microlots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMicrolot(m), nil
}

func (st *state) getMicrolotByCode(code string) (*model.Microlot, error) {
	id, ok := st.codes[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st.getMicrolot(id)
}

func (st *state) listMicrolots(filter model.MicrolotFilter) ([]*model.Microlot, int, error) {
	var out []*model.Microlot
	for _, m := range st.microlots {
		if matchMicrolot(m, filter) {
			out = append(out, copyMicrolot(m))
		}
	}
	sortMicrolots(out, filter.Sort)

	total := len(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			out = nil
		} else {
			out = out[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func matchMicrolot(m *model.Microlot, f model.MicrolotFilter) bool {
	if !f.IncludeInactive && !m.IsActive {
		return false
	}
	if len(f.Status) > 0 && !contains(f.Status, m.Status) {
		return false
	}
	if len(f.QualityGrade) > 0 && !contains(f.QualityGrade, m.QualityGrade) {
		return false
	}
	if f.LotRef != "" && m.LotRef != f.LotRef {
		return false
	}
	if f.HarvestRef != "" && m.HarvestRef != f.HarvestRef {
		return false
	}
	if f.Flagged != nil && *f.Flagged != (m.IntegrityFlag != nil) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(m.Code), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// sortMicrolots mirrors the SQL store's sort allow-list.
func sortMicrolots(ms []*model.Microlot, order string) {
	desc := strings.HasPrefix(order, "-")
	col := strings.TrimPrefix(order, "-")
	var less func(a, b *model.Microlot) bool
	switch col {
	case "updated_at":
		less = func(a, b *model.Microlot) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "quantity_kg":
		less = func(a, b *model.Microlot) bool { return a.QuantityKg < b.QuantityKg }
	case "code":
		less = func(a, b *model.Microlot) bool { return a.Code < b.Code }
	case "status":
		less = func(a, b *model.Microlot) bool { return a.Status < b.Status }
	case "quality_grade":
		less = func(a, b *model.Microlot) bool { return a.QualityGrade < b.QualityGrade }
	case "created_at":
		less = func(a, b *model.Microlot) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		less = func(a, b *model.Microlot) bool { return a.CreatedAt.Before(b.CreatedAt) }
		desc = true
	}
	sort.SliceStable(ms, func(i, j int) bool {
		if desc {
			return less(ms[j], ms[i])
		}
		return less(ms[i], ms[j])
	})
}

func (st *state) updateMicrolotStatus(id string, status model.Status, tailBlock int64) error {
	m, ok := st.microlots[id]
	if !ok {
		return store.ErrNotFound
	}
	if m.TailBlock != tailBlock-1 {
		return fmt.Errorf("%w: tail of %s moved past block %d", store.ErrConflict, id, tailBlock-1)
	}
	cp := copyMicrolot(m)
	cp.Status = status
	cp.TailBlock = tailBlock
	cp.UpdatedAt = time.Now().UTC()
	st.microlots[id] = cp
	st.versions[id]++
	return nil
}

func (st *state) setMicrolotActive(id string, active bool) error {
	m, ok := st.microlots[id]
	if !ok {
		return store.ErrNotFound
	}
	cp := copyMicrolot(m)
	cp.IsActive = active
	cp.UpdatedAt = time.Now().UTC()
	st.microlots[id] = cp
	st.versions[id]++
	return nil
}

func (st *state) setIntegrityFlag(id string, flag *model.IntegrityFlag) error {
	m, ok := st.microlots[id]
	if !ok {
		return store.ErrNotFound
	}
	cp := copyMicrolot(m)
	cp.IntegrityFlag = nil
	if flag != nil {
		f := *flag
		cp.IntegrityFlag = &f
	}
	cp.UpdatedAt = time.Now().UTC()
	st.microlots[id] = cp
	st.versions[id]++
	return nil
}

func (st *state) appendEvent(e *model.TraceabilityEvent) error {
	if _, ok := st.microlots[e.MicrolotID]; !ok {
		return fmt.Errorf("append event: microlot %s: %w", e.MicrolotID, store.ErrNotFound)
	}
	chain := st.events[e.MicrolotID]
	for _, existing := range chain {
		if existing.BlockNumber == e.BlockNumber {
			return fmt.Errorf("%w: block %d of %s already exists", store.ErrConflict, e.BlockNumber, e.MicrolotID)
		}
	}
	n := len(chain)
	st.events[e.MicrolotID] = append(chain[:n:n], copyEvent(e))
	st.versions[e.MicrolotID]++
	return nil
}

func (st *state) chainTail(microlotID string) *model.TraceabilityEvent {
	var tail *model.TraceabilityEvent
	for _, e := range st.events[microlotID] {
		if tail == nil || e.BlockNumber > tail.BlockNumber {
			tail = e
		}
	}
	if tail == nil {
		return nil
	}
	return copyEvent(tail)
}

func (st *state) listEvents(microlotID string) []*model.TraceabilityEvent {
	chain := st.events[microlotID]
	out := make([]*model.TraceabilityEvent, len(chain))
	for i, e := range chain {
		out[i] = copyEvent(e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out
}

func (st *state) createQualityRecord(r *model.QualityControlRecord) error {
	if _, ok := st.microlots[r.MicrolotID]; !ok {
		return fmt.Errorf("create quality record: microlot %s: %w", r.MicrolotID, store.ErrNotFound)
	}
	list := st.quality[r.MicrolotID]
	n := len(list)
	cp := *r
	cp.Measurements = copyMeasurements(r.Measurements)
	st.quality[r.MicrolotID] = append(list[:n:n], &cp)
	return nil
}

func (st *state) listQualityRecords(microlotID string) []*model.QualityControlRecord {
	list := st.quality[microlotID]
	out := make([]*model.QualityControlRecord, len(list))
	for i, r := range list {
		cp := *r
		cp.Measurements = copyMeasurements(r.Measurements)
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TestDate.Equal(out[j].TestDate) {
			return out[i].TestDate.Before(out[j].TestDate)
		}
		return out[i].EventBlock < out[j].EventBlock
	})
	return out
}

func (st *state) createCertification(c *model.CertificationRecord) error {
	if _, ok := st.microlots[c.MicrolotID]; !ok {
		return fmt.Errorf("create certification: microlot %s: %w", c.MicrolotID, store.ErrNotFound)
	}
	if _, ok := st.certs[c.ID]; ok {
		return fmt.Errorf("%w: certification %s already exists", store.ErrConflict, c.ID)
	}
	cp := copyCertification(c)
	st.certs[c.ID] = cp
	ids := st.certOrder[c.MicrolotID]
	n := len(ids)
	st.certOrder[c.MicrolotID] = append(ids[:n:n], c.ID)
	return nil
}

func (st *state) getCertification(id string) (*model.CertificationRecord, error) {
	c, ok := st.certs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyCertification(c), nil
}

func (st *state) listCertifications(microlotID string) []*model.CertificationRecord {
	ids := st.certOrder[microlotID]
	out := make([]*model.CertificationRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyCertification(st.certs[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssueDate.Before(out[j].IssueDate) })
	return out
}

func (st *state) revokeCertification(id string, at time.Time, by, reason string) error {
	c, ok := st.certs[id]
	if !ok || c.RevokedAt != nil {
		return store.ErrNotFound
	}
	cp := copyCertification(c)
	cp.RevokedAt = &at
	cp.RevokedBy = by
	cp.RevocationReason = reason
	st.certs[id] = cp
	return nil
}

func (st *state) getLot(id string) (*model.Lot, error) {
	l, ok := st.lots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	if f, ok := st.farms[l.FarmID]; ok {
		fc := *f
		cp.Farm = &fc
	}
	return &cp, nil
}

func (st *state) getHarvest(id string) (*model.Harvest, error) {
	h, ok := st.harvests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (st *state) stats() *model.Stats {
	s := &model.Stats{ByStatus: make(map[model.Status]int)}
	for _, m := range st.microlots {
		s.TotalMicrolots++
		if m.IsActive {
			s.ActiveMicrolots++
			s.ByStatus[m.Status]++
		}
		if m.IntegrityFlag != nil {
			s.IntegrityFlagged++
		}
	}
	for _, chain := range st.events {
		s.TotalEvents += len(chain)
	}
	for _, list := range st.quality {
		for _, r := range list {
			if r.Passed {
				s.QualityPassed++
			} else {
				s.QualityFailed++
			}
		}
	}
	s.Certifications = len(st.certs)
	return s
}

func copyMicrolot(m *model.Microlot) *model.Microlot {
	cp := *m
	if m.IntegrityFlag != nil {
		f := *m.IntegrityFlag
		cp.IntegrityFlag = &f
	}
	return &cp
}

func copyCertification(c *model.CertificationRecord) *model.CertificationRecord {
	cp := *c
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

// copyEvent deep-copies an event so callers can never reach stored data.
func copyEvent(e *model.TraceabilityEvent) *model.TraceabilityEvent {
	cp := *e
	if e.PreviousHash != nil {
		h := *e.PreviousHash
		cp.PreviousHash = &h
	}
	cp.Metadata = copyMetadata(e.Metadata)
	return &cp
}

func copyMetadata(m model.EventMetadata) model.EventMetadata {
	out := m
	if m.Location != nil {
		l := *m.Location
		l.Latitude = copyFloat(l.Latitude)
		l.Longitude = copyFloat(l.Longitude)
		l.AltitudeM = copyFloat(l.AltitudeM)
		out.Location = &l
	}
	if m.Process != nil {
		p := *m.Process
		p.DurationHours = copyFloat(p.DurationHours)
		p.TemperatureC = copyFloat(p.TemperatureC)
		p.MoisturePct = copyFloat(p.MoisturePct)
		out.Process = &p
	}
	if m.Quality != nil {
		q := *m.Quality
		q.Measurements = copyMeasurements(q.Measurements)
		out.Quality = &q
	}
	if m.Certification != nil {
		c := *m.Certification
		out.Certification = &c
	}
	if m.Revert != nil {
		r := *m.Revert
		out.Revert = &r
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Attributes != nil {
		out.Attributes = cloneMap(m.Attributes)
	}
	return out
}

func copyMeasurements(m model.Measurements) model.Measurements {
	out := m
	out.MoisturePct = copyFloat(m.MoisturePct)
	out.Density = copyFloat(m.Density)
	out.Aroma = copyFloat(m.Aroma)
	out.Acidity = copyFloat(m.Acidity)
	out.Body = copyFloat(m.Body)
	out.Flavor = copyFloat(m.Flavor)
	out.SCAScore = copyFloat(m.SCAScore)
	if m.Defects != nil {
		d := *m.Defects
		out.Defects = &d
	}
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
