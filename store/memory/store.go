// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/elasticmail/mailstore/msgid"
	"github.com/elasticmail/mailstore/store"
)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*account
	connected int32
}

// account holds all per-mailbox state. created tracks the account
// marker row; other state may exist without it, mirroring the
// reconcilable inconsistencies of the real backends.
type account struct {
	created  bool
	labels   map[int]string
	rows     map[msgid.ID]*store.MessageRow
	index    map[int][]msgid.ID // sorted ascending by id value
	counters map[int]store.LabelCounters
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{accounts: make(map[string]*account)}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// account returns the mailbox state, creating it lazily. The account
// marker row itself is tracked separately via CreateAccount.
func (s *Store) account(mailbox string) *account {
	a, ok := s.accounts[mailbox]
	if !ok {
		a = &account{
			labels:   make(map[int]string),
			rows:     make(map[msgid.ID]*store.MessageRow),
			index:    make(map[int][]msgid.ID),
			counters: make(map[int]store.LabelCounters),
		}
		s.accounts[mailbox] = a
	}
	return a
}

// =============================================================================
// Account Operations
// =============================================================================

// CreateAccount creates the account marker row.
func (s *Store) CreateAccount(_ context.Context, mailbox string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if mailbox == "" {
		return store.ErrInvalidMailbox
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(mailbox)
	if a.created {
		return store.ErrAccountExists
	}
	a.created = true
	return nil
}

// DeleteAccount removes the account and all of its state.
func (s *Store) DeleteAccount(_ context.Context, mailbox string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.accounts, mailbox)
	s.mu.Unlock()
	return nil
}

// AccountExists reports whether the mailbox has been created.
func (s *Store) AccountExists(_ context.Context, mailbox string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	s.mu.RLock()
	a, ok := s.accounts[mailbox]
	s.mu.RUnlock()
	return ok && a.created, nil
}

// =============================================================================
// Label Operations
// =============================================================================

// PutLabel upserts a label id/name pair.
func (s *Store) PutLabel(_ context.Context, mailbox string, id int, name string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	s.account(mailbox).labels[id] = name
	s.mu.Unlock()
	return nil
}

// DeleteLabel removes a label definition.
func (s *Store) DeleteLabel(_ context.Context, mailbox string, id int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	if a, ok := s.accounts[mailbox]; ok {
		delete(a.labels, id)
	}
	s.mu.Unlock()
	return nil
}

// Labels returns all label definitions for the mailbox.
func (s *Store) Labels(_ context.Context, mailbox string) (map[int]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]string)
	if a, ok := s.accounts[mailbox]; ok {
		for id, name := range a.labels {
			out[id] = name
		}
	}
	return out, nil
}

// =============================================================================
// Message Row Operations
// =============================================================================

// PutMessage upserts the metadata row for a message.
func (s *Store) PutMessage(_ context.Context, mailbox string, id msgid.ID, row *store.MessageRow) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	s.account(mailbox).rows[id] = row.Clone()
	s.mu.Unlock()
	return nil
}

// GetMessage retrieves a metadata row.
func (s *Store) GetMessage(_ context.Context, mailbox string, id msgid.ID) (*store.MessageRow, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[mailbox]
	if !ok {
		return nil, store.ErrNotFound
	}
	row, ok := a.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return row.Clone(), nil
}

// DeleteMessages removes metadata rows. Absent ids are skipped.
func (s *Store) DeleteMessages(_ context.Context, mailbox string, ids []msgid.ID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	if a, ok := s.accounts[mailbox]; ok {
		for _, id := range ids {
			delete(a.rows, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// ListMessages iterates every metadata row of the mailbox.
func (s *Store) ListMessages(_ context.Context, mailbox string, fn func(id msgid.ID, row *store.MessageRow) error) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	// Snapshot under the read lock so fn may call back into the store.
	s.mu.RLock()
	var ids []msgid.ID
	var rows []*store.MessageRow
	if a, ok := s.accounts[mailbox]; ok {
		ids = make([]msgid.ID, 0, len(a.rows))
		rows = make([]*store.MessageRow, 0, len(a.rows))
		for id, row := range a.rows {
			ids = append(ids, id)
			rows = append(rows, row.Clone())
		}
	}
	s.mu.RUnlock()

	for i := range ids {
		if err := fn(ids[i], rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Label Index Operations
// =============================================================================

// AddIndex inserts the ids into the label's sorted index.
func (s *Store) AddIndex(_ context.Context, mailbox string, labelID int, ids []msgid.ID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(mailbox)
	idx := a.index[labelID]
	for _, id := range ids {
		pos := sort.Search(len(idx), func(i int) bool {
			return idx[i].Compare(id) >= 0
		})
		if pos < len(idx) && idx[pos] == id {
			continue // already present
		}
		idx = append(idx, msgid.ID{})
		copy(idx[pos+1:], idx[pos:])
		idx[pos] = id
	}
	a.index[labelID] = idx
	return nil
}

// RemoveIndex deletes matching entries. Removing absent ids is a no-op.
func (s *Store) RemoveIndex(_ context.Context, mailbox string, labelID int, ids []msgid.ID) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[mailbox]
	if !ok {
		return nil
	}
	idx := a.index[labelID]
	for _, id := range ids {
		pos := sort.Search(len(idx), func(i int) bool {
			return idx[i].Compare(id) >= 0
		})
		if pos < len(idx) && idx[pos] == id {
			idx = append(idx[:pos], idx[pos+1:]...)
		}
	}
	a.index[labelID] = idx
	return nil
}

// ScanIndex returns up to count ids ordered by id value.
func (s *Store) ScanIndex(_ context.Context, mailbox string, labelID int, start msgid.ID, count int, reverse bool) ([]msgid.ID, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[mailbox]
	if !ok {
		return nil, nil
	}
	idx := a.index[labelID]

	out := make([]msgid.ID, 0, count)
	if reverse {
		// Newest first: start below the cursor, or at the top for a zero cursor.
		hi := len(idx)
		if !start.IsZero() {
			hi = sort.Search(len(idx), func(i int) bool {
				return idx[i].Compare(start) >= 0
			})
		}
		for i := hi - 1; i >= 0 && len(out) < count; i-- {
			out = append(out, idx[i])
		}
	} else {
		lo := 0
		if !start.IsZero() {
			lo = sort.Search(len(idx), func(i int) bool {
				return idx[i].Compare(start) > 0
			})
		}
		for i := lo; i < len(idx) && len(out) < count; i++ {
			out = append(out, idx[i])
		}
	}
	return out, nil
}

// DropIndex removes the label's entire index.
func (s *Store) DropIndex(_ context.Context, mailbox string, labelID int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	if a, ok := s.accounts[mailbox]; ok {
		delete(a.index, labelID)
	}
	s.mu.Unlock()
	return nil
}

// IndexedLabels returns the label ids holding index or counter state.
func (s *Store) IndexedLabels(_ context.Context, mailbox string) ([]int, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[mailbox]
	if !ok {
		return nil, nil
	}
	seen := make(map[int]bool, len(a.index))
	var out []int
	for l, ids := range a.index {
		if len(ids) > 0 {
			seen[l] = true
			out = append(out, l)
		}
	}
	for l := range a.counters {
		if !seen[l] {
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out, nil
}

// =============================================================================
// Counter Operations
// =============================================================================

// IncrementCounters adds delta componentwise into the stored counter row.
func (s *Store) IncrementCounters(_ context.Context, mailbox string, labelID int, delta store.LabelCounters) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	a := s.account(mailbox)
	a.counters[labelID] = a.counters[labelID].Add(delta)
	s.mu.Unlock()
	return nil
}

// GetCounters returns the stored counters. Absent rows read as zero.
func (s *Store) GetCounters(_ context.Context, mailbox string, labelID int) (store.LabelCounters, error) {
	if err := s.checkConnected(); err != nil {
		return store.LabelCounters{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[mailbox]; ok {
		return a.counters[labelID], nil
	}
	return store.LabelCounters{}, nil
}

// DeleteCounters removes the counter row.
func (s *Store) DeleteCounters(_ context.Context, mailbox string, labelID int) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	if a, ok := s.accounts[mailbox]; ok {
		delete(a.counters, labelID)
	}
	s.mu.Unlock()
	return nil
}
