package botledger

import (
	"fmt"
)

// DefaultHistoryLimit is the number of messages kept per user and model
// (ten user/assistant pairs).
const DefaultHistoryLimit = 20

// Ledger tracks quotas, conversation history and entitlements per user.
// All methods are safe for concurrent use; atomicity comes from the Store.
type Ledger struct {
	store        Store
	tiers        Tiers
	catalog      Catalog
	meter        Meter
	defaultTier  string
	historyLimit int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTiers sets the tier table. The table is copied.
func WithTiers(t Tiers) Option {
	return func(l *Ledger) { l.tiers = t.Clone() }
}

// WithCatalog sets the model catalog.
func WithCatalog(c Catalog) Option {
	return func(l *Ledger) { l.catalog = append(Catalog(nil), c...) }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(l *Ledger) { l.meter = m }
}

// WithDefaultTier sets the tier new accounts are seeded with (default "free").
func WithDefaultTier(name string) Option {
	return func(l *Ledger) { l.defaultTier = name }
}

// WithHistoryLimit sets the per-model history bound. It must be even and at least 2.
func WithHistoryLimit(n int) Option {
	return func(l *Ledger) { l.historyLimit = n }
}

// NewLedger creates a Ledger over the given store.
// DefaultCatalog, the built-in tiers and a no-op meter are used unless
// overridden. The built-in unlimited tier covers every catalog model.
func NewLedger(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("botledger: a store is required")
	}

	l := &Ledger{
		store:        store,
		defaultTier:  TierFree,
		historyLimit: DefaultHistoryLimit,
	}

	for _, opt := range opts {
		opt(l)
	}

	// Apply defaults after options.
	if l.catalog == nil {
		l.catalog = DefaultCatalog()
	}
	if l.tiers == nil {
		l.tiers = DefaultTiersFor(l.catalog)
	}
	if l.meter == nil {
		l.meter = noopMeter{}
	}

	if _, err := l.tiers.Lookup(l.defaultTier); err != nil {
		return nil, fmt.Errorf("botledger: default tier: %w", err)
	}
	if l.historyLimit < 2 || l.historyLimit%2 != 0 {
		return nil, fmt.Errorf("botledger: history limit must be an even number >= 2, got %d", l.historyLimit)
	}

	return l, nil
}

// Store returns the underlying store.
func (l *Ledger) Store() Store { return l.store }

// Catalog returns a copy of the model catalog.
func (l *Ledger) Catalog() Catalog { return append(Catalog(nil), l.catalog...) }

// seed returns a fresh account on the default tier.
func (l *Ledger) seed() Account {
	return Account{
		Tier:   l.defaultTier,
		Limits: copyLimits(l.tiers[l.defaultTier].Limits),
	}
}

// loadOrSeed returns the stored account, or a seeded one with created=true.
func (l *Ledger) loadOrSeed(tx Tx, userID string) (acc Account, created bool, err error) {
	acc, ok, err := tx.Account(userID)
	if err != nil {
		return Account{}, false, err
	}
	if !ok {
		return l.seed(), true, nil
	}
	if acc.Limits == nil {
		acc.Limits = make(map[string]int64)
	}
	return acc, false, nil
}

func checkUser(op, userID string) error {
	if userID == "" {
		return &LedgerError{Op: op, Err: ErrInvalidUserID}
	}
	return nil
}

func wrapErr(op, userID, model string, err error) error {
	if err == nil {
		return nil
	}
	return &LedgerError{Op: op, UserID: userID, Model: model, Err: err}
}
