package botledger

import "context"

// Store is durable storage for accounts and promo codes.
//
// Every read-modify-write sequence runs inside Update: the writes made by fn
// become visible together, or not at all if fn or the commit fails.
type Store interface {
	// View runs fn against a read-only view of the keys in scope.
	View(ctx context.Context, scope Scope, fn func(tx Tx) error) error

	// Update runs fn in a transaction over the keys in scope. Optimistic
	// stores may run fn more than once, so fn must reset anything it
	// captures on each call.
	Update(ctx context.Context, scope Scope, fn func(tx Tx) error) error

	// Close releases the store's resources.
	Close() error
}

// Scope names the keys a transaction may touch. Stores use it to lock or watch
// only what the operation needs, so unrelated users do not serialize.
type Scope struct {
	UserID    string
	PromoCode string
}

// Tx is the view of a store inside View or Update.
// Put methods return ErrOutOfScope for keys outside the transaction's Scope,
// and an error for any write inside View.
type Tx interface {
	Account(userID string) (Account, bool, error)
	PutAccount(userID string, acc Account) error
	Promo(code string) (PromoCode, bool, error)
	PutPromo(code string, promo PromoCode) error
}

// Exporter is implemented by stores that can dump their full state.
type Exporter interface {
	Export(ctx context.Context) (Snapshot, error)
}

// Importer is implemented by stores that can load a full state, overwriting
// records with the same keys.
type Importer interface {
	Import(ctx context.Context, snap Snapshot) error
}

// UserScope returns a scope covering a single account.
func UserScope(userID string) Scope {
	return Scope{UserID: userID}
}

// Covers reports whether the scope includes the given account or promo key.
func (s Scope) Covers(userID, code string) bool {
	if userID != "" && userID != s.UserID {
		return false
	}
	if code != "" && code != s.PromoCode {
		return false
	}
	return true
}
