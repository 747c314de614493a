package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"credreg/internal/registry/models"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

// snapshot is one committed ledger state. Snapshots are never mutated after
// they are published; records inside them are cloned on every read.
type snapshot struct {
	height         uint64
	credentials    map[id.CredentialID]*models.Credential
	bySubject      map[id.Identity][]id.CredentialID
	accreditations map[id.InstitutionID]*models.AccreditationRecord
	// events is append-only across snapshots. A snapshot only reads
	// events[:len], and the single writer only appends past the latest len.
	events []*models.Event
}

func emptySnapshot() *snapshot {
	return &snapshot{
		credentials:    make(map[id.CredentialID]*models.Credential),
		bySubject:      make(map[id.Identity][]id.CredentialID),
		accreditations: make(map[id.InstitutionID]*models.AccreditationRecord),
	}
}

// memTxn buffers writes until commit.
type memTxn struct {
	owner          *Memory
	base           *snapshot
	credentials    map[id.CredentialID]*models.Credential
	created        []id.CredentialID
	accreditations map[id.InstitutionID]*models.AccreditationRecord
	events         []*models.Event
}

func (t *memTxn) dirty() bool {
	return len(t.credentials) > 0 || len(t.accreditations) > 0 || len(t.events) > 0
}

type memView struct {
	owner *Memory
	snap  *snapshot
}

type (
	memTxnKey  struct{}
	memViewKey struct{}
)

// Memory is the in-process ledger. Readers load the current snapshot through
// an atomic pointer and never block. Writers take a one-slot semaphore, build
// the next snapshot copy-on-write and publish it with a single pointer store.
type Memory struct {
	current atomic.Pointer[snapshot]
	writer  chan struct{}
	timeout time.Duration

	outboxMu     sync.Mutex
	positions    map[id.EventID]int
	processed    map[id.EventID]time.Time
	firstPending int
}

type MemoryOption func(*Memory)

// WithMemoryTxTimeout bounds how long a transition may wait for and hold the writer slot.
func WithMemoryTxTimeout(d time.Duration) MemoryOption {
	return func(m *Memory) { m.timeout = d }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		writer:    make(chan struct{}, 1),
		timeout:   defaultTxTimeout,
		positions: make(map[id.EventID]int),
		processed: make(map[id.EventID]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.current.Store(emptySnapshot())
	return m
}

func (m *Memory) txn(ctx context.Context) (*memTxn, bool) {
	t, ok := ctx.Value(memTxnKey{}).(*memTxn)
	return t, ok && t.owner == m
}

// snap returns the snapshot reads in ctx should observe.
func (m *Memory) snap(ctx context.Context) *snapshot {
	if t, ok := m.txn(ctx); ok {
		return t.base
	}
	if v, ok := ctx.Value(memViewKey{}).(memView); ok && v.owner == m {
		return v.snap
	}
	return m.current.Load()
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := m.txn(ctx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	select {
	case m.writer <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: ledger busy")
	}
	defer func() { <-m.writer }()

	t := &memTxn{
		owner:          m,
		base:           m.current.Load(),
		credentials:    make(map[id.CredentialID]*models.Credential),
		accreditations: make(map[id.InstitutionID]*models.AccreditationRecord),
	}
	if err := fn(context.WithValue(ctx, memTxnKey{}, t)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	if !t.dirty() {
		return nil
	}
	m.commit(t)
	return nil
}

func (m *Memory) commit(t *memTxn) {
	base := t.base
	next := &snapshot{
		height:         base.height + 1,
		credentials:    maps.Clone(base.credentials),
		bySubject:      maps.Clone(base.bySubject),
		accreditations: maps.Clone(base.accreditations),
		events:         base.events,
	}
	maps.Copy(next.credentials, t.credentials)
	maps.Copy(next.accreditations, t.accreditations)
	for _, cid := range t.created {
		subject := t.credentials[cid].Subject
		next.bySubject[subject] = append(slices.Clone(next.bySubject[subject]), cid)
	}
	start := len(next.events)
	for _, ev := range t.events {
		ev.Height = next.height
		next.events = append(next.events, ev)
	}

	// Publish under outboxMu so the outbox never sees an event it cannot mark.
	m.outboxMu.Lock()
	for i := start; i < len(next.events); i++ {
		m.positions[next.events[i].ID] = i
	}
	m.current.Store(next)
	m.outboxMu.Unlock()
}

func (m *Memory) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := m.txn(ctx); ok {
		return fn(ctx)
	}
	if v, ok := ctx.Value(memViewKey{}).(memView); ok && v.owner == m {
		return fn(ctx)
	}
	return fn(context.WithValue(ctx, memViewKey{}, memView{owner: m, snap: m.current.Load()}))
}

func (m *Memory) Height(ctx context.Context) (uint64, error) {
	return m.snap(ctx).height, nil
}

func (m *Memory) FindCredential(ctx context.Context, cid id.CredentialID) (*models.Credential, error) {
	if t, ok := m.txn(ctx); ok {
		if c, ok := t.credentials[cid]; ok {
			return c.Clone(), nil
		}
	}
	c, ok := m.snap(ctx).credentials[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// ListCredentialsBySubject returns the subject's credentials in issuance order.
func (m *Memory) ListCredentialsBySubject(ctx context.Context, subject id.Identity) ([]*models.Credential, error) {
	s := m.snap(ctx)
	ids := s.bySubject[subject]
	t, inTx := m.txn(ctx)
	if inTx {
		for _, cid := range t.created {
			if t.credentials[cid].Subject == subject {
				ids = append(slices.Clip(ids), cid)
			}
		}
	}

	out := make([]*models.Credential, 0, len(ids))
	for _, cid := range ids {
		c := s.credentials[cid]
		if inTx {
			if pending, ok := t.credentials[cid]; ok {
				c = pending
			}
		}
		out = append(out, c.Clone())
	}
	return out, nil
}

func (m *Memory) CreateCredential(ctx context.Context, c *models.Credential) error {
	t, ok := m.txn(ctx)
	if !ok {
		return errOutsideTx
	}
	if _, exists := t.credentials[c.ID]; exists {
		return fmt.Errorf("credential %s: %w", c.ID, sentinel.ErrAlreadyUsed)
	}
	if _, exists := t.base.credentials[c.ID]; exists {
		return fmt.Errorf("credential %s: %w", c.ID, sentinel.ErrAlreadyUsed)
	}
	t.credentials[c.ID] = c.Clone()
	t.created = append(t.created, c.ID)
	return nil
}

func (m *Memory) UpdateCredential(ctx context.Context, c *models.Credential) error {
	t, ok := m.txn(ctx)
	if !ok {
		return errOutsideTx
	}
	_, pending := t.credentials[c.ID]
	_, committed := t.base.credentials[c.ID]
	if !pending && !committed {
		return sentinel.ErrNotFound
	}
	t.credentials[c.ID] = c.Clone()
	return nil
}

func (m *Memory) FindAccreditation(ctx context.Context, inst id.InstitutionID) (*models.AccreditationRecord, error) {
	if t, ok := m.txn(ctx); ok {
		if a, ok := t.accreditations[inst]; ok {
			return a.Clone(), nil
		}
	}
	a, ok := m.snap(ctx).accreditations[inst]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

// SaveAccreditation inserts or replaces the record for its institution.
func (m *Memory) SaveAccreditation(ctx context.Context, a *models.AccreditationRecord) error {
	t, ok := m.txn(ctx)
	if !ok {
		return errOutsideTx
	}
	t.accreditations[a.InstitutionID] = a.Clone()
	return nil
}

func (m *Memory) AppendEvent(ctx context.Context, ev *models.Event) error {
	t, ok := m.txn(ctx)
	if !ok {
		return errOutsideTx
	}
	t.events = append(t.events, ev.Clone())
	return nil
}

// ListEvents returns committed events with height > afterHeight, oldest first.
func (m *Memory) ListEvents(ctx context.Context, afterHeight uint64, limit int) ([]*models.Event, error) {
	events := m.snap(ctx).events
	start := sort.Search(len(events), func(i int) bool { return events[i].Height > afterHeight })
	end := len(events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()
	out := make([]*models.Event, 0, end-start)
	for _, ev := range events[start:end] {
		out = append(out, m.withDelivery(ev))
	}
	return out, nil
}

// withDelivery must be called with outboxMu held.
func (m *Memory) withDelivery(ev *models.Event) *models.Event {
	cp := ev.Clone()
	if at, ok := m.processed[ev.ID]; ok {
		cp.ProcessedAt = &at
	}
	return cp
}

func (m *Memory) FetchUnprocessed(_ context.Context, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()

	events := m.current.Load().events
	var out []*models.Event
	for i := m.firstPending; i < len(events) && len(out) < limit; i++ {
		if _, done := m.processed[events[i].ID]; !done {
			out = append(out, events[i].Clone())
		}
	}
	return out, nil
}

func (m *Memory) MarkProcessed(_ context.Context, eid id.EventID, at time.Time) error {
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()

	pos, ok := m.positions[eid]
	if !ok {
		return fmt.Errorf("outbox event %s: %w", eid, sentinel.ErrNotFound)
	}
	if _, done := m.processed[eid]; done {
		return fmt.Errorf("outbox event %s: %w", eid, sentinel.ErrAlreadyUsed)
	}
	m.processed[eid] = at

	events := m.current.Load().events
	if pos == m.firstPending {
		for m.firstPending < len(events) {
			if _, done := m.processed[events[m.firstPending].ID]; !done {
				break
			}
			m.firstPending++
		}
	}
	return nil
}

func (m *Memory) CountPending(_ context.Context) (int64, error) {
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()
	return int64(len(m.current.Load().events) - len(m.processed)), nil
}

func (m *Memory) Ping(context.Context) error { return nil }
