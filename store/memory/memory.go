// Package memory provides an in-process Store for botledger.
//
// Transactions lock only the user and promo keys in their scope, so
// operations on different users run in parallel. Commits are applied
// copy-on-write when a persist hook is set: if the hook fails, the previous
// state stays in place and the transaction reports ErrStoreIO.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/internal/keylock"
)

// PersistFunc durably writes the full state after a transaction. It runs
// while commits are serialized and must not retain snap.
type PersistFunc func(snap botledger.Snapshot) error

// Store is an in-memory botledger.Store.
type Store struct {
	locks   *keylock.Map
	mu      sync.RWMutex // guards state
	state   botledger.Snapshot
	persist PersistFunc
}

var (
	_ botledger.Store    = (*Store)(nil)
	_ botledger.Exporter = (*Store)(nil)
	_ botledger.Importer = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithPersister sets a hook run on every commit.
func WithPersister(fn PersistFunc) Option {
	return func(s *Store) { s.persist = fn }
}

// WithSnapshot sets the initial state. The snapshot is copied.
func WithSnapshot(snap botledger.Snapshot) Option {
	return func(s *Store) { s.state = snap.Clone() }
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		locks: keylock.New(),
		state: botledger.NewSnapshot(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func userKey(id string) string {
	if id == "" {
		return ""
	}
	return "user:" + id
}

func promoKey(code string) string {
	if code == "" {
		return ""
	}
	return "promo:" + code
}

// View runs fn against the current state.
func (s *Store) View(ctx context.Context, scope botledger.Scope, fn func(tx botledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{store: s, scope: scope, readOnly: true})
}

// Update runs fn with the scope's keys locked and commits its writes.
func (s *Store) Update(ctx context.Context, scope botledger.Scope, fn func(tx botledger.Tx) error) error {
	unlock := s.locks.Lock(userKey(scope.UserID), promoKey(scope.PromoCode))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{store: s, scope: scope}
	if err := fn(t); err != nil {
		return err
	}
	if len(t.accounts) == 0 && len(t.promos) == 0 {
		return nil
	}
	return s.commit(t.accounts, t.promos)
}

func (s *Store) commit(accounts map[string]botledger.Account, promos map[string]botledger.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist == nil {
		for id, acc := range accounts {
			s.state.Users[id] = acc
		}
		for code, p := range promos {
			s.state.Promocodes[code] = p
		}
		return nil
	}

	next := botledger.Snapshot{
		Users:      make(map[string]botledger.Account, len(s.state.Users)+len(accounts)),
		Promocodes: make(map[string]botledger.PromoCode, len(s.state.Promocodes)+len(promos)),
	}
	for id, acc := range s.state.Users {
		next.Users[id] = acc
	}
	for code, p := range s.state.Promocodes {
		next.Promocodes[code] = p
	}
	for id, acc := range accounts {
		next.Users[id] = acc
	}
	for code, p := range promos {
		next.Promocodes[code] = p
	}

	if err := s.persist(next); err != nil {
		return botledger.StoreError("botledger/memory: persist", err)
	}
	s.state = next
	return nil
}

// Export returns a deep copy of the full state.
func (s *Store) Export(ctx context.Context) (botledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return botledger.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Import merges snap into the store, replacing records with the same keys.
// It does not take per-key locks; run it while the store is idle.
func (s *Store) Import(ctx context.Context, snap botledger.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap = snap.Clone()
	return s.commit(snap.Users, snap.Promocodes)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// tx buffers writes until commit. Reads see the transaction's own writes.
type tx struct {
	store    *Store
	scope    botledger.Scope
	readOnly bool
	accounts map[string]botledger.Account
	promos   map[string]botledger.PromoCode
}

func (t *tx) Account(userID string) (botledger.Account, bool, error) {
	if !t.scope.Covers(userID, "") {
		return botledger.Account{}, false, fmt.Errorf("%w: user %q", botledger.ErrOutOfScope, userID)
	}
	if acc, ok := t.accounts[userID]; ok {
		return acc.Clone(), true, nil
	}

	t.store.mu.RLock()
	acc, ok := t.store.state.Users[userID]
	t.store.mu.RUnlock()
	if !ok {
		return botledger.Account{}, false, nil
	}
	return acc.Clone(), true, nil
}

func (t *tx) PutAccount(userID string, acc botledger.Account) error {
	if t.readOnly {
		return fmt.Errorf("botledger/memory: write in read-only transaction")
	}
	if !t.scope.Covers(userID, "") {
		return fmt.Errorf("%w: user %q", botledger.ErrOutOfScope, userID)
	}
	if t.accounts == nil {
		t.accounts = make(map[string]botledger.Account)
	}
	t.accounts[userID] = acc.Clone()
	return nil
}

func (t *tx) Promo(code string) (botledger.PromoCode, bool, error) {
	if !t.scope.Covers("", code) {
		return botledger.PromoCode{}, false, fmt.Errorf("%w: promo %q", botledger.ErrOutOfScope, code)
	}
	if p, ok := t.promos[code]; ok {
		return p, true, nil
	}

	t.store.mu.RLock()
	p, ok := t.store.state.Promocodes[code]
	t.store.mu.RUnlock()
	return p, ok, nil
}

func (t *tx) PutPromo(code string, promo botledger.PromoCode) error {
	if t.readOnly {
		return fmt.Errorf("botledger/memory: write in read-only transaction")
	}
	if !t.scope.Covers("", code) {
		return fmt.Errorf("%w: promo %q", botledger.ErrOutOfScope, code)
	}
	if t.promos == nil {
		t.promos = make(map[string]botledger.PromoCode)
	}
	t.promos[code] = promo
	return nil
}
